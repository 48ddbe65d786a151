package policyopa

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"chainsign/internal/domain"
	"chainsign/internal/usecase"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.chainsign.admission.result"

//go:embed default.rego
var defaultPolicy string

type Engine struct {
	query  rego.PreparedEvalQuery
	source string
}

// NewEngine prepares the admission policy. An empty path selects the built-in policy;
// otherwise every .rego file under path is loaded and must define data.chainsign.admission.
func NewEngine(ctx context.Context, path string) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	options := []func(*rego.Rego){
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}
	source := "builtin"
	if path == "" {
		options = append(options, rego.Module("chainsign/admission.rego", defaultPolicy))
	} else {
		options = append(options, rego.Load([]string{path}, nil))
		source = path
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare admission policy %s: %w", source, err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared, source: source}, nil
}

func (e *Engine) Source() string {
	return e.source
}

func (e *Engine) Evaluate(ctx context.Context, input domain.AdmissionInput) (domain.AdmissionDecision, error) {
	if e == nil {
		return domain.AdmissionDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.AdmissionDecision{}, errors.New("empty policy result")
	}
	decision, err := decodeDecision(results[0].Expressions[0].Value)
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	sort.Strings(decision.Deny)
	if len(decision.Deny) > 0 {
		decision.Allow = false
	}
	return decision, nil
}

func decodeDecision(value any) (domain.AdmissionDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	var decision domain.AdmissionDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.AdmissionDecision{}, err
	}
	return decision, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}

var _ usecase.AdmissionPolicy = (*Engine)(nil)
