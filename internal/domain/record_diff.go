package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CanonicalText flattens the record into a deterministic set of lines
// suitable for diffing. Child collections flatten with indexed prefixes so
// reordering or editing a nested row registers as a change.
func (r Record) CanonicalText() ([]string, error) {
	lines := []string{
		fmt.Sprintf("EntityType: %s", r.EntityType),
		fmt.Sprintf("Key: %s", r.Key),
		"Fields:",
	}

	flattened := map[string]string{}
	for name, value := range r.Fields {
		if err := flattenValue(name, value, flattened); err != nil {
			return nil, err
		}
	}

	collections := make([]string, 0, len(r.Children))
	for collection := range r.Children {
		collections = append(collections, collection)
	}
	sort.Strings(collections)
	for _, collection := range collections {
		for idx, child := range r.Children[collection] {
			prefix := fmt.Sprintf("%s[%d]", collection, idx)
			for name, value := range child.Fields {
				if err := flattenValue(prefix+"."+name, value, flattened); err != nil {
					return nil, err
				}
			}
		}
	}

	if len(flattened) == 0 {
		lines = append(lines, "  (empty)")
		return lines, nil
	}

	keys := make([]string, 0, len(flattened))
	for key := range flattened {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, flattened[key]))
	}

	return lines, nil
}

// DiffRecords produces a unified diff between two records using the
// provided labels. An empty string means the records are identical.
func DiffRecords(baseLabel string, base Record, targetLabel string, target Record) (string, error) {
	baseLines, err := base.CanonicalText()
	if err != nil {
		return "", err
	}
	targetLines, err := target.CanonicalText()
	if err != nil {
		return "", err
	}

	ops := diffLines(baseLines, targetLines)
	changed := false
	for _, op := range ops {
		if op.prefix != " " {
			changed = true
			break
		}
	}
	if !changed {
		return "", nil
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	for _, op := range ops {
		builder.WriteString(op.prefix)
		builder.WriteString(op.line)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

func flattenValue(prefix string, value any, acc map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			acc[prefix] = "{}"
			return nil
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := flattenValue(prefix+"."+key, typed[key], acc); err != nil {
				return err
			}
		}
	case []any:
		if len(typed) == 0 {
			acc[prefix] = "[]"
			return nil
		}
		for idx, item := range typed {
			if err := flattenValue(fmt.Sprintf("%s[%d]", prefix, idx), item, acc); err != nil {
				return err
			}
		}
	case nil:
		acc[prefix] = "null"
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			acc[prefix] = fmt.Sprintf("%v", typed)
		} else {
			acc[prefix] = string(encoded)
		}
	}
	return nil
}

type diffOp struct {
	prefix string
	line   string
}

func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case base[i] == target[j]:
			ops = append(ops, diffOp{" ", base[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, diffOp{"-", base[i]})
			i++
		default:
			ops = append(ops, diffOp{"+", target[j]})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, diffOp{"-", base[i]})
	}
	for ; j < n; j++ {
		ops = append(ops, diffOp{"+", target[j]})
	}
	return ops
}
