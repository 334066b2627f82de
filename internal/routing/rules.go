package routing

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// OverrideRule is one user-defined routing rule from the rules file. When its
// condition evaluates true for a model the built-in table did not claim, the
// request goes to the named provider as a one-shot call.
type OverrideRule struct {
	Name     string `yaml:"name"`
	When     string `yaml:"when"`
	Provider string `yaml:"provider"`
}

type rulesFile struct {
	Rules []OverrideRule `yaml:"rules"`
}

// RuleSet holds compiled override rules, evaluated in file order.
type RuleSet struct {
	rules []compiledRule
}

type compiledRule struct {
	name     string
	provider string
	program  *vm.Program
}

// LoadRules reads and compiles a YAML rules file. Conditions are expr
// expressions over `model` and `prompt`.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if unmarshalErr := yaml.Unmarshal(data, &file); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", unmarshalErr)
	}

	return CompileRules(file.Rules)
}

// CompileRules compiles override rules without touching the filesystem.
func CompileRules(rules []OverrideRule) (*RuleSet, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.When == "" || r.Provider == "" {
			return nil, fmt.Errorf("rule %q needs both a condition and a provider", r.Name)
		}

		program, err := expr.Compile(r.When, expr.Env(ruleEnv("", "")), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %q has an invalid condition: %w", r.Name, err)
		}

		compiled = append(compiled, compiledRule{
			name:     r.Name,
			provider: r.Provider,
			program:  program,
		})
	}

	return &RuleSet{rules: compiled}, nil
}

// Match evaluates rules in order and returns the first matching rule's
// provider name. Rules that fail to evaluate are skipped.
func (rs *RuleSet) Match(model, prompt string) (string, bool) {
	if rs == nil {
		return "", false
	}

	env := ruleEnv(model, prompt)
	for _, r := range rs.rules {
		out, err := expr.Run(r.program, env)
		if err != nil {
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			return r.provider, true
		}
	}

	return "", false
}

func ruleEnv(model, prompt string) map[string]any {
	return map[string]any{
		"model":  model,
		"prompt": prompt,
	}
}
