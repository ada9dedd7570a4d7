package source

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// KeywordPolicy filters announcement titles. A title passes when it contains
// any Any term, or when it contains at least one Core term and at least one
// Modifier term. Core without Modifier (or the reverse) acts as a flat set.
// An empty policy passes every title.
type KeywordPolicy struct {
	Any      []string `yaml:"any"`
	Core     []string `yaml:"core"`
	Modifier []string `yaml:"modifier"`

	anyRe, coreRe, modRe *regexp.Regexp
}

// NewKeywordPolicy compiles a policy from the three term sets.
func NewKeywordPolicy(anyTerms, core, modifier []string) KeywordPolicy {
	kw := KeywordPolicy{Any: clean(anyTerms), Core: clean(core), Modifier: clean(modifier)}
	kw.compile()
	return kw
}

// DefaultKeywordPolicy returns the M&A restructuring plan policy.
func DefaultKeywordPolicy() KeywordPolicy {
	return NewKeywordPolicy(nil,
		[]string{"重大资产重组", "发行股份购买资产", "购买资产", "重组"},
		[]string{"预案", "草案"},
	)
}

// LoadKeywordPolicy reads a YAML file with any/core/modifier lists.
func LoadKeywordPolicy(path string) (KeywordPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordPolicy{}, eris.Wrapf(err, "source: read keywords file %s", path)
	}
	var kw KeywordPolicy
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return KeywordPolicy{}, eris.Wrapf(err, "source: parse keywords file %s", path)
	}
	return NewKeywordPolicy(kw.Any, kw.Core, kw.Modifier), nil
}

// Empty reports whether the policy has no terms.
func (k KeywordPolicy) Empty() bool {
	return len(k.Any) == 0 && len(k.Core) == 0 && len(k.Modifier) == 0
}

// Match reports whether title passes the policy.
func (k KeywordPolicy) Match(title string) bool {
	if k.Empty() {
		return true
	}
	if k.anyRe == nil && k.coreRe == nil && k.modRe == nil {
		k.compile()
	}

	if k.anyRe != nil && k.anyRe.MatchString(title) {
		return true
	}
	switch {
	case k.coreRe != nil && k.modRe != nil:
		return k.coreRe.MatchString(title) && k.modRe.MatchString(title)
	case k.coreRe != nil:
		return k.coreRe.MatchString(title)
	case k.modRe != nil:
		return k.modRe.MatchString(title)
	}
	return false
}

// String renders the policy for logs.
func (k KeywordPolicy) String() string {
	var parts []string
	if len(k.Any) > 0 {
		parts = append(parts, "any("+strings.Join(k.Any, "|")+")")
	}
	if len(k.Core) > 0 {
		parts = append(parts, "core("+strings.Join(k.Core, "|")+")")
	}
	if len(k.Modifier) > 0 {
		parts = append(parts, "modifier("+strings.Join(k.Modifier, "|")+")")
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " + ")
}

func (k *KeywordPolicy) compile() {
	k.anyRe = disjunction(k.Any)
	k.coreRe = disjunction(k.Core)
	k.modRe = disjunction(k.Modifier)
}

// disjunction builds an alternation of the regex-escaped terms.
func disjunction(terms []string) *regexp.Regexp {
	if len(terms) == 0 {
		return nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(strings.Join(quoted, "|"))
}

func clean(terms []string) []string {
	var out []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
