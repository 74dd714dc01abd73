package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Rule-definition file names recognized during discovery.
const (
	FileName    = "review-rules.yaml"
	FileNameAlt = "review-rules.yml"
)

// Discover recursively locates all rule-definition files under root and
// parses them. One bad file never blocks discovery of valid rules
// elsewhere; problems are reported as diagnostics instead.
func Discover(root string) ([]Rule, []Diagnostic) {
	var files []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == FileName || d.Name() == FileNameAlt {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)

	var all []Rule
	var diags []Diagnostic
	for _, f := range files {
		rs, ds := parseFile(root, f)
		all = append(all, rs...)
		diags = append(diags, ds...)
	}
	return all, diags
}

// parseFile parses one rules file into Rule records, collecting a
// diagnostic per invalid rule and continuing with the rest.
func parseFile(root, absPath string) ([]Rule, []Diagnostic) {
	relPath, err := filepath.Rel(root, absPath)
	if err != nil {
		relPath = absPath
	}
	relPath = filepath.ToSlash(relPath)
	relDir := path.Dir(relPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, []Diagnostic{{File: relPath, Msg: fmt.Sprintf("cannot read: %v", err)}}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, []Diagnostic{{File: relPath, Msg: fmt.Sprintf("invalid YAML: %v", err)}}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, []Diagnostic{{File: relPath, Msg: "top level must be a mapping of rule name to rule"}}
	}

	var out []Rule
	var diags []Diagnostic
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode, valNode := mapping.Content[i], mapping.Content[i+1]
		name := keyNode.Value

		if !nameRe.MatchString(name) {
			diags = append(diags, Diagnostic{File: relPath, Rule: name,
				Msg: "rule name must match ^[a-zA-Z0-9_-]+$"})
			continue
		}

		rule, err := buildRule(name, valNode, absPath)
		if err != nil {
			diags = append(diags, Diagnostic{File: relPath, Rule: name, Msg: err.Error()})
			continue
		}

		rule.SourceDir = relDir
		rule.SourceFile = relPath
		rule.SourceLine = keyNode.Line
		out = append(out, rule)
	}
	return out, diags
}

// buildRule validates the rule node structurally and constructs the
// immutable Rule record. absPath is the defining file, used to resolve
// instructions file references.
func buildRule(name string, node *yaml.Node, absPath string) (Rule, error) {
	if node.Kind != yaml.MappingNode {
		return Rule{}, fmt.Errorf("rule body must be a mapping")
	}

	var descNode, matchNode, reviewNode *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		switch k.Value {
		case "description":
			descNode = v
		case "match":
			matchNode = v
		case "review":
			reviewNode = v
		default:
			return Rule{}, fmt.Errorf("unexpected key %q", k.Value)
		}
	}
	if descNode == nil {
		return Rule{}, fmt.Errorf("missing required key %q", "description")
	}
	if matchNode == nil {
		return Rule{}, fmt.Errorf("missing required key %q", "match")
	}
	if reviewNode == nil {
		return Rule{}, fmt.Errorf("missing required key %q", "review")
	}

	var description string
	if err := descNode.Decode(&description); err != nil {
		return Rule{}, fmt.Errorf("description must be a string")
	}

	include, exclude, err := buildMatch(matchNode)
	if err != nil {
		return Rule{}, err
	}

	rule := Rule{
		Name:            name,
		Description:     description,
		IncludePatterns: include,
		ExcludePatterns: exclude,
	}
	if err := buildReview(&rule, reviewNode, absPath); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func buildMatch(node *yaml.Node) (include, exclude []string, err error) {
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("match must be a mapping")
	}
	var includeNode, excludeNode *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		switch k.Value {
		case "include":
			includeNode = v
		case "exclude":
			excludeNode = v
		default:
			return nil, nil, fmt.Errorf("unexpected key %q in match", k.Value)
		}
	}
	if includeNode == nil {
		return nil, nil, fmt.Errorf("missing required key %q", "match.include")
	}
	if err := includeNode.Decode(&include); err != nil {
		return nil, nil, fmt.Errorf("match.include must be a list of glob strings")
	}
	if len(include) == 0 {
		return nil, nil, fmt.Errorf("match.include must not be empty")
	}
	if excludeNode != nil {
		if err := excludeNode.Decode(&exclude); err != nil {
			return nil, nil, fmt.Errorf("match.exclude must be a list of glob strings")
		}
	}
	// A malformed glob would otherwise silently match nothing at all.
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, nil, fmt.Errorf("invalid glob pattern %q in match.include", p)
		}
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, nil, fmt.Errorf("invalid glob pattern %q in match.exclude", p)
		}
	}
	return include, exclude, nil
}

func buildReview(rule *Rule, node *yaml.Node, absPath string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("review must be a mapping")
	}
	var strategyNode, instructionsNode, agentNode, contextNode *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		switch k.Value {
		case "strategy":
			strategyNode = v
		case "instructions":
			instructionsNode = v
		case "agent":
			agentNode = v
		case "additional_context":
			contextNode = v
		default:
			return fmt.Errorf("unexpected key %q in review", k.Value)
		}
	}
	if strategyNode == nil {
		return fmt.Errorf("missing required key %q", "review.strategy")
	}
	if instructionsNode == nil {
		return fmt.Errorf("missing required key %q", "review.instructions")
	}

	var strategy string
	if err := strategyNode.Decode(&strategy); err != nil {
		return fmt.Errorf("review.strategy must be a string")
	}
	rule.Strategy = Strategy(strategy)
	if !ValidStrategy(rule.Strategy) {
		return fmt.Errorf("unknown strategy %q (want individual, matches_together, or all_changed_files)", strategy)
	}

	instructions, err := resolveInstructions(instructionsNode, absPath)
	if err != nil {
		return err
	}
	rule.Instructions = instructions

	if agentNode != nil {
		personas := map[string]string{}
		if err := agentNode.Decode(&personas); err != nil {
			return fmt.Errorf("review.agent must map provider name to persona string")
		}
		for provider := range personas {
			if !nameRe.MatchString(provider) {
				return fmt.Errorf("agent provider name %q must match ^[a-zA-Z0-9_-]+$", provider)
			}
		}
		rule.AgentPersonas = personas
	}

	if contextNode != nil {
		if err := buildAdditionalContext(rule, contextNode); err != nil {
			return err
		}
	}
	return nil
}

func buildAdditionalContext(rule *Rule, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("review.additional_context must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		var val bool
		switch k.Value {
		case "all_changed_filenames":
			if err := v.Decode(&val); err != nil {
				return fmt.Errorf("additional_context.all_changed_filenames must be a boolean")
			}
			rule.IncludeAllChangedFilenames = val
		case "unchanged_matching_files":
			if err := v.Decode(&val); err != nil {
				return fmt.Errorf("additional_context.unchanged_matching_files must be a boolean")
			}
			rule.IncludeUnchangedMatchingFiles = val
		default:
			return fmt.Errorf("unexpected key %q in additional_context", k.Value)
		}
	}
	return nil
}

// resolveInstructions returns inline instruction text, or reads the
// referenced file relative to the rules file's directory. A missing
// reference is an error for the rule, never a silent skip.
func resolveInstructions(node *yaml.Node, absPath string) (string, error) {
	if node.Kind == yaml.ScalarNode {
		var text string
		if err := node.Decode(&text); err != nil {
			return "", fmt.Errorf("review.instructions must be a string or {file: path}")
		}
		return text, nil
	}
	if node.Kind != yaml.MappingNode {
		return "", fmt.Errorf("review.instructions must be a string or {file: path}")
	}

	var fileRef string
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Value != "file" {
			return "", fmt.Errorf("unexpected key %q in review.instructions", k.Value)
		}
		if err := v.Decode(&fileRef); err != nil {
			return "", fmt.Errorf("review.instructions.file must be a string")
		}
	}
	if fileRef == "" {
		return "", fmt.Errorf("review.instructions.file must not be empty")
	}

	resolved := filepath.Join(filepath.Dir(absPath), filepath.FromSlash(fileRef))
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("instructions file %q: %v", fileRef, err)
	}
	return string(data), nil
}
