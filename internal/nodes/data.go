package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/soteldo/umbra/pkg/schema"
)

// variableExecutor backs the variable, array and object nodes. The kinds
// differ only in what the editor lets the user enter; at run time all three
// store a value under a name.
type variableExecutor struct {
	kind schema.NodeKind
}

func (e *variableExecutor) Kind() schema.NodeKind { return e.kind }

func (e *variableExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.VariableParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "variable node requires a name")
	}
	rt.SetVar(p.Name, p.Value)
	return nil
}

// --- Math ---

type mathExecutor struct{}

func (e *mathExecutor) Kind() schema.NodeKind { return schema.KindMath }

func (e *mathExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.MathParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "math requires a resultVar")
	}
	if len(p.Operands) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "math requires at least one operand")
	}
	if !validMathOp(p.Operation) {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown math operation %q", p.Operation)
	}

	operands := make([]float64, len(p.Operands))
	for i, raw := range p.Operands {
		f, err := toFloat(raw)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "operand %d is not a number", i).WithCause(err)
		}
		operands[i] = f
	}

	result := operands[0]
	for _, operand := range operands[1:] {
		switch p.Operation {
		case "add":
			result += operand
		case "subtract":
			result -= operand
		case "multiply":
			result *= operand
		case "divide":
			if operand == 0 {
				return schema.NewError(schema.ErrCodeExecution, "division by zero")
			}
			result /= operand
		case "mod":
			if operand == 0 {
				return schema.NewError(schema.ErrCodeExecution, "modulo by zero")
			}
			result = math.Mod(result, operand)
		}
	}

	rt.SetVar(p.ResultVar, result)
	return nil
}

func validMathOp(op string) bool {
	switch op {
	case "add", "subtract", "multiply", "divide", "mod":
		return true
	}
	return false
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

// --- Strings ---

type stringExecutor struct{}

func (e *stringExecutor) Kind() schema.NodeKind { return schema.KindString }

func (e *stringExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.StringParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "string requires a resultVar")
	}
	if len(p.Strings) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "string requires at least one input string")
	}

	first := p.Strings[0]
	var result any
	switch p.Operation {
	case "concat":
		result = strings.Join(p.Strings, p.Separator)
	case "upper":
		result = strings.ToUpper(first)
	case "lower":
		result = strings.ToLower(first)
	case "trim":
		result = strings.TrimSpace(first)
	case "split":
		parts := strings.Split(first, p.Separator)
		out := make([]any, len(parts))
		for i, s := range parts {
			out[i] = s
		}
		result = out
	case "replace":
		result = strings.ReplaceAll(first, p.Search, p.Replacement)
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown string operation %q", p.Operation)
	}

	rt.SetVar(p.ResultVar, result)
	return nil
}

// --- JSON ---

type jsonExecutor struct{}

func (e *jsonExecutor) Kind() schema.NodeKind { return schema.KindJSON }

func (e *jsonExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.JSONParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "json requires a resultVar")
	}

	var result any
	switch p.Operation {
	case "parse":
		text, ok := p.Data.(string)
		if !ok {
			return schema.NewError(schema.ErrCodeValidation, "json parse expects a string input")
		}
		if err := json.Unmarshal([]byte(text), &result); err != nil {
			return schema.NewError(schema.ErrCodeExecution, "input is not valid JSON").WithCause(err)
		}
	case "stringify":
		encoded, err := json.Marshal(p.Data)
		if err != nil {
			return schema.NewError(schema.ErrCodeExecution, "value cannot be encoded as JSON").WithCause(err)
		}
		result = string(encoded)
	case "query":
		if p.Query == "" {
			return schema.NewError(schema.ErrCodeValidation, "json query requires a query")
		}
		val, err := rt.JQ().EvaluateValue(ctx, p.Query, p.Data)
		if err != nil {
			return err
		}
		result = val
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown json operation %q", p.Operation)
	}

	rt.SetVar(p.ResultVar, result)
	return nil
}

// --- Regex ---

type regexExecutor struct{}

func (e *regexExecutor) Kind() schema.NodeKind { return schema.KindRegex }

func (e *regexExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.RegexParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "regex requires a resultVar")
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid regex pattern %q", p.Pattern).WithCause(err)
	}

	matches := re.FindAllString(p.Text, -1)
	out := make([]any, len(matches))
	for i, m := range matches {
		out[i] = m
	}
	rt.SetVar(p.ResultVar, out)
	return nil
}

// --- Randomize ---

const randomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type randomizeExecutor struct{}

func (e *randomizeExecutor) Kind() schema.NodeKind { return schema.KindRandomize }

func (e *randomizeExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.RandomizeParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "randomize requires a resultVar")
	}

	switch p.Type {
	case "", "number":
		if p.Max < p.Min {
			return schema.NewErrorf(schema.ErrCodeValidation, "max %d is below min %d", p.Max, p.Min)
		}
		rt.SetVar(p.ResultVar, float64(p.Min+rand.Intn(p.Max-p.Min+1)))
	case "string":
		length := p.Length
		if length <= 0 {
			length = 16
		}
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = randomAlphabet[rand.Intn(len(randomAlphabet))]
		}
		rt.SetVar(p.ResultVar, string(buf))
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown randomize type %q", p.Type)
	}
	return nil
}

// --- Lists ---

type sortExecutor struct{}

func (e *sortExecutor) Kind() schema.NodeKind { return schema.KindSort }

func (e *sortExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.SortParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "sort requires a resultVar")
	}
	items, err := asList(p.Array)
	if err != nil {
		return err
	}

	out := make([]any, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return lessValues(out[i], out[j])
	})
	if p.Order == "descending" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	rt.SetVar(p.ResultVar, out)
	return nil
}

// lessValues orders numbers numerically and everything else lexically by
// string form. Mixed lists sort numbers before non-numbers.
func lessValues(a, b any) bool {
	fa, errA := toFloat(a)
	fb, errB := toFloat(b)
	switch {
	case errA == nil && errB == nil:
		return fa < fb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
}

func asList(v any) ([]any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "expected a list, got %T", v)
	}
	return items, nil
}

type filterExecutor struct{}

func (e *filterExecutor) Kind() schema.NodeKind { return schema.KindFilter }

func (e *filterExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.FilterParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" || p.Condition == "" {
		return schema.NewError(schema.ErrCodeValidation, "filter requires a condition and a resultVar")
	}
	items, err := asList(p.Array)
	if err != nil {
		return err
	}

	out := make([]any, 0, len(items))
	for i, item := range items {
		env := rt.Vars()
		env["item"] = item
		env["index"] = i
		keep, err := rt.Expr().EvaluateBool(ctx, p.Condition, env)
		if err != nil {
			return err
		}
		if keep {
			out = append(out, item)
		}
	}

	rt.SetVar(p.ResultVar, out)
	return nil
}

type mapExecutor struct{}

func (e *mapExecutor) Kind() schema.NodeKind { return schema.KindMap }

func (e *mapExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.MapParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" || p.Operation == "" {
		return schema.NewError(schema.ErrCodeValidation, "map requires an operation and a resultVar")
	}
	items, err := asList(p.Array)
	if err != nil {
		return err
	}

	out := make([]any, len(items))
	for i, item := range items {
		env := rt.Vars()
		env["item"] = item
		env["index"] = i
		mapped, err := rt.Expr().Evaluate(ctx, p.Operation, env)
		if err != nil {
			return err
		}
		out[i] = mapped
	}

	rt.SetVar(p.ResultVar, out)
	return nil
}

// --- Dates ---

type dateExecutor struct{}

func (e *dateExecutor) Kind() schema.NodeKind { return schema.KindDate }

func (e *dateExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.DateParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "date requires a resultVar")
	}

	now := time.Now()
	switch p.Operation {
	case "now":
		rt.SetVar(p.ResultVar, now.Format(time.RFC3339))
	case "timestamp":
		rt.SetVar(p.ResultVar, float64(now.UnixMilli()))
	case "format":
		layout := p.Layout
		if layout == "" {
			layout = time.RFC3339
		}
		rt.SetVar(p.ResultVar, now.Format(layout))
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown date operation %q", p.Operation)
	}
	return nil
}
