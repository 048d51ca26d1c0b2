//go:build onnx

package onnx

import (
	"encoding/json"
	"os"
	"strings"
)

// BERT special token ids shared by the sentence-transformer checkpoints we
// target.
const (
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// wordPieceTokenizer is a minimal BERT WordPiece tokenizer: lowercase, strip
// edge punctuation, longest-prefix subword matching with the "##"
// continuation marker.
type wordPieceTokenizer struct {
	vocab map[string]int
}

func loadWordPieceTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	return &wordPieceTokenizer{vocab: file.Model.Vocab}, nil
}

// encode produces fixed-length input_ids, attention_mask, and token_type_ids
// with [CLS] and [SEP] framing, truncating to maxSeq.
func (t *wordPieceTokenizer) encode(text string, maxSeq int) (ids, mask, types []int64) {
	ids = make([]int64, maxSeq)
	mask = make([]int64, maxSeq)
	types = make([]int64, maxSeq)

	tokens := t.tokenize(text)
	if len(tokens) > maxSeq-2 {
		tokens = tokens[:maxSeq-2]
	}

	ids[0] = clsToken
	mask[0] = 1
	for i, id := range tokens {
		ids[i+1] = id
		mask[i+1] = 1
	}
	ids[len(tokens)+1] = sepToken
	mask[len(tokens)+1] = 1
	return ids, mask, types
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var out []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, t.subwords(word)...)
	}
	return out
}

// subwords splits an out-of-vocabulary word by greedy longest-prefix match.
func (t *wordPieceTokenizer) subwords(word string) []int64 {
	var out []int64
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				out = append(out, int64(id))
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			out = append(out, unkToken)
			start++
		}
	}
	return out
}
