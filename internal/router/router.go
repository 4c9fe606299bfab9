package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/llm"
	"github.com/dvloznov/moneyrag/internal/logger"
)

// Planner is the LLM capability the router needs: one prompt, one decision.
type Planner interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StepTrace records one control-loop step for the answer's audit trail.
type StepTrace struct {
	Tool        string
	Input       json.RawMessage
	Observation string
	Err         string
}

// Answer is the router's result. Partial marks best-effort answers produced
// at the step cap or from degraded evidence; they are never silently wrong.
type Answer struct {
	Text    string
	Partial bool
	Steps   []StepTrace
}

// decision is the tagged action the planner returns each step.
type decision struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
	Answer string          `json:"answer"`
}

// Router drives the bounded-step control loop: pick a tool, inspect its
// output, repeat until the evidence suffices or the cap is hit. The loop is
// single-threaded; tool calls block in sequence.
type Router struct {
	planner  Planner
	tools    []Tool
	byName   map[string]Tool
	maxSteps int
}

// New builds a router over a closed set of tools.
func New(planner Planner, maxSteps int, tools ...Tool) *Router {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Router{planner: planner, tools: tools, byName: byName, maxSteps: maxSteps}
}

// Ask answers a natural-language question grounded only in tool evidence.
func (r *Router) Ask(ctx context.Context, question string) (*Answer, error) {
	log := logger.FromContext(ctx)
	var steps []StepTrace

	for step := 0; step < r.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := r.planner.Generate(ctx, buildPlannerPrompt(question, r.tools, steps))
		if err != nil {
			return nil, fmt.Errorf("Router.Ask: planner: %w", err)
		}

		var dec decision
		if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &dec); err != nil {
			steps = append(steps, StepTrace{
				Tool: "planner",
				Err:  fmt.Sprintf("invalid decision JSON: %v", err),
			})
			continue
		}

		if dec.Action == "answer" {
			log.Info().Int("steps", len(steps)).Msg("router answered")
			return &Answer{Text: dec.Answer, Steps: steps}, nil
		}

		tool, ok := r.byName[dec.Action]
		if !ok {
			steps = append(steps, StepTrace{
				Tool: dec.Action,
				Err:  fmt.Sprintf("unknown action %q", dec.Action),
			})
			continue
		}

		obs, err := tool.Invoke(ctx, dec.Params)
		if err != nil {
			var unavailable *domain.StoreUnavailableError
			if errors.As(err, &unavailable) {
				return nil, fmt.Errorf("Router.Ask: %s: %w", tool.Name(), err)
			}
			// Everything else (rejected input, embed timeouts, lookup
			// errors) is that call's failure, not the loop's: the planner
			// sees the error and can retry or switch tools.
			log.Warn().Err(err).Str("tool", tool.Name()).Msg("tool call failed")
			steps = append(steps, StepTrace{Tool: tool.Name(), Input: dec.Params, Err: err.Error()})
			continue
		}

		log.Info().Str("tool", tool.Name()).Int("step", step+1).Msg("tool invoked")
		steps = append(steps, StepTrace{Tool: tool.Name(), Input: dec.Params, Observation: obs})
	}

	// Step cap reached: produce a best-effort answer, explicitly partial.
	log.Warn().Int("max_steps", r.maxSteps).Msg(domain.ErrStepLimit.Error())
	text, err := r.planner.Generate(ctx, buildFinalPrompt(question, steps))
	if err != nil {
		text = "Unable to fully answer within the step budget; the evidence gathered was insufficient."
	}
	return &Answer{Text: text, Partial: true, Steps: steps}, nil
}
