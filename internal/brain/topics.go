package brain

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// TopicRule tags a session with Topic when any keyword occurs in a query.
// Keywords match anywhere in the text; Words must appear as a whole word,
// which keeps short terms like "AI" from matching inside "mai" or "hai".
type TopicRule struct {
	Topic    string   `yaml:"topic"`
	Keywords []string `yaml:"keywords"`
	Words    []string `yaml:"words"`
}

// DefaultTopics is the built-in rule table. Order matters: the first rule
// with a hit wins.
var DefaultTopics = []TopicRule{
	{Topic: "thời tiết", Keywords: []string{"thời tiết", "mưa", "nắng", "nhiệt độ", "weather"}},
	{Topic: "tin tức", Keywords: []string{"tin tức", "news", "thời sự", "sự kiện"}},
	{Topic: "công nghệ", Keywords: []string{"công nghệ", "technology", "phần mềm", "software"}, Words: []string{"AI"}},
	{Topic: "tài chính", Keywords: []string{"chứng khoán", "cổ phiếu", "giá vàng", "tài chính", "bitcoin"}},
	{Topic: "học tập", Keywords: []string{"học", "bài tập", "kiến thức", "giải thích"}},
}

// Classifier maps a query to a topic by keyword containment. Query and
// keywords are compared after NFC normalization and case folding.
type Classifier struct {
	rules []TopicRule
}

// NewClassifier builds a classifier over rules. Keywords are folded once up
// front; empty keywords are dropped.
func NewClassifier(rules []TopicRule) *Classifier {
	folded := make([]TopicRule, 0, len(rules))
	for _, r := range rules {
		fr := TopicRule{Topic: r.Topic}
		for _, kw := range r.Keywords {
			if kw = fold(kw); kw != "" {
				fr.Keywords = append(fr.Keywords, kw)
			}
		}
		for _, w := range r.Words {
			if w = fold(w); w != "" {
				fr.Words = append(fr.Words, w)
			}
		}
		folded = append(folded, fr)
	}
	return &Classifier{rules: folded}
}

// Classify returns the first matching topic, or "" when none match.
func (c *Classifier) Classify(query string) string {
	q := fold(query)
	var words map[string]bool
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(q, kw) {
				return r.Topic
			}
		}
		if len(r.Words) == 0 {
			continue
		}
		if words == nil {
			words = wordSet(q)
		}
		for _, w := range r.Words {
			if words[w] {
				return r.Topic
			}
		}
	}
	return ""
}

func wordSet(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// LoadTopics reads a rule table from a YAML file of the form
//
//	topics:
//	  - topic: thời tiết
//	    keywords: [mưa, nắng]
//	  - topic: công nghệ
//	    words: [AI]
func LoadTopics(path string) ([]TopicRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}

	var doc struct {
		Topics []TopicRule `yaml:"topics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse topics file: %w", err)
	}
	if len(doc.Topics) == 0 {
		return nil, fmt.Errorf("topics file %s defines no topics", path)
	}
	for i, r := range doc.Topics {
		if r.Topic == "" {
			return nil, fmt.Errorf("topics file %s: rule %d has no topic", path, i)
		}
	}
	return doc.Topics, nil
}

func fold(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFC.String(s)))
}
