// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine is the execution kernel for FlowKernel workflows: parsing,
// validation, scheduling, variable resolution, retry/circuit-breaker policy,
// and the step executor.
package engine

// Workflow is the parsed, typed form of a workflow YAML document.
type Workflow struct {
	Workflow    WorkflowMeta `yaml:"workflow" json:"workflow"`
	Inputs      []InputDecl  `yaml:"inputs" json:"inputs"`
	Steps       []Step       `yaml:"steps" json:"steps"`
	UIMetadata  *UIMetadata  `yaml:"ui_metadata,omitempty" json:"ui_metadata,omitempty"`
}

// WorkflowMeta holds the workflow's identity block.
type WorkflowMeta struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// InputDecl is an input declaration.
type InputDecl struct {
	ID       string        `yaml:"id" json:"id"`
	Type     string        `yaml:"type" json:"type"` // string|number|boolean|file|select
	Label    string        `yaml:"label" json:"label"`
	Required bool          `yaml:"required" json:"required"`
	Default  interface{}   `yaml:"default,omitempty" json:"default,omitempty"`
	Options  []interface{} `yaml:"options,omitempty" json:"options,omitempty"`
}

// Step kinds, a closed sum type.
const (
	StepScript      = "script"
	StepLLM         = "llm"
	StepOutput      = "output"
	StepConditional = "conditional"
	StepLoop        = "loop"
)

// ErrorPropagation strategies.
const (
	PropagationFailFast   = "fail-fast"
	PropagationFailSilent = "fail-silent"
	PropagationFallback   = "fallback"
)

// Step is a single DAG node. Fields are a union across all step types;
// which fields apply depends on Type (dispatch is a tagged switch, not a
// class hierarchy).
type Step struct {
	ID               string       `yaml:"id" json:"id"`
	Type             string       `yaml:"type" json:"type"`
	Label            string       `yaml:"label,omitempty" json:"label,omitempty"`
	DependsOn        []string     `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	ErrorPropagation string       `yaml:"error_propagation,omitempty" json:"error_propagation,omitempty"`
	FallbackStep     string       `yaml:"fallback_step,omitempty" json:"fallback_step,omitempty"`
	RetryPolicy      *RetryPolicy `yaml:"retry_policy,omitempty" json:"retry_policy,omitempty"`

	// script
	Script string                 `yaml:"script,omitempty" json:"script,omitempty"`
	Inputs map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// llm
	Model          string `yaml:"model,omitempty" json:"model,omitempty"`
	PromptTemplate string `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`

	// output
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// conditional
	Condition string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	ThenSteps []string `yaml:"then_steps,omitempty" json:"then_steps,omitempty"`
	ElseSteps []string `yaml:"else_steps,omitempty" json:"else_steps,omitempty"`

	// loop
	Items         interface{} `yaml:"items,omitempty" json:"items,omitempty"`
	LoopSteps     []string    `yaml:"loop_steps,omitempty" json:"loop_steps,omitempty"`
	MaxIterations int         `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// Delay strategies for RetryPolicy.
const (
	DelayFixed       = "fixed"
	DelayExponential = "exponential"
	DelayJittered    = "jittered"
)

// RetryPolicy configures the attempt loop around a step dispatch.
type RetryPolicy struct {
	MaxAttempts        int                  `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	InitialDelayMs     int                  `yaml:"initial_delay_ms,omitempty" json:"initial_delay_ms,omitempty"`
	BackoffMultiplier  float64              `yaml:"backoff_multiplier,omitempty" json:"backoff_multiplier,omitempty"`
	MaxDelayMs         int                  `yaml:"max_delay_ms,omitempty" json:"max_delay_ms,omitempty"`
	DelayStrategy      string               `yaml:"delay_strategy,omitempty" json:"delay_strategy,omitempty"`
	RetryOnErrors      []string             `yaml:"retry_on_errors,omitempty" json:"retry_on_errors,omitempty"`
	DontRetryOnErrors  []string             `yaml:"dont_retry_on_errors,omitempty" json:"dont_retry_on_errors,omitempty"`
	CircuitBreaker     *CircuitBreakerConfig `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty"`
}

// WithDefaults returns a copy of p with zero-valued fields replaced by the
// documented defaults (max_attempts=1, initial_delay_ms=1000, multiplier=2,
// max_delay_ms=30000, delay_strategy=exponential).
func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelayMs == 0 {
		p.InitialDelayMs = 1000
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = 2
	}
	if p.MaxDelayMs == 0 {
		p.MaxDelayMs = 30000
	}
	if p.DelayStrategy == "" {
		p.DelayStrategy = DelayExponential
	}
	return p
}

// CircuitBreakerConfig configures the per-resource breaker.
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	FailureThreshold int  `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`
	CooldownMs       int  `yaml:"cooldown_ms,omitempty" json:"cooldown_ms,omitempty"`
}

// WithDefaults fills in the documented defaults (failure_threshold=5, cooldown_ms=60000).
func (c CircuitBreakerConfig) WithDefaults() CircuitBreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.CooldownMs == 0 {
		c.CooldownMs = 60000
	}
	return c
}

// UIMetadata is opaque layout data the editor uses; the kernel only
// validates its referential integrity.
type UIMetadata struct {
	Nodes    []UINode `yaml:"nodes" json:"nodes"`
	Viewport UIViewport `yaml:"viewport" json:"viewport"`
}

type UINode struct {
	ID       string    `yaml:"id" json:"id"`
	Position UIPosition `yaml:"position" json:"position"`
	Width    *float64  `yaml:"width,omitempty" json:"width,omitempty"`
	Height   *float64  `yaml:"height,omitempty" json:"height,omitempty"`
}

type UIPosition struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

type UIViewport struct {
	Zoom float64 `yaml:"zoom" json:"zoom"`
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
}

// LoopContext describes the current loop iteration visible to the
// variable resolver as loop.item / loop.index / loop.key / loop.value.
type LoopContext struct {
	Item  interface{}
	Index int
	Key   *string
	Value interface{}
}

// ExecutionContext is the mutable state threaded through one execute call.
// StepOutputs is append-only and monotonically grows.
type ExecutionContext struct {
	WorkflowInputs map[string]interface{}
	StepOutputs    map[string]map[string]interface{}
	LoopContext    *LoopContext
	Env            map[string]string
}

// NewExecutionContext builds an ExecutionContext seeded with workflow
// inputs and the given environment map (nil yields an empty one).
func NewExecutionContext(inputs map[string]interface{}, env map[string]string) *ExecutionContext {
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	if env == nil {
		env = map[string]string{}
	}
	return &ExecutionContext{
		WorkflowInputs: inputs,
		StepOutputs:    map[string]map[string]interface{}{},
		Env:            env,
	}
}

// ExecutionResult is the top-level outcome of one ExecuteWorkflow call.
type ExecutionResult struct {
	Success         bool                   `json:"success"`
	Outputs         map[string]interface{} `json:"outputs"`
	SuccessCount    int                    `json:"success_count"`
	FailureCount    int                    `json:"failure_count"`
	FailedStepID    string                 `json:"failed_step_id,omitempty"`
	Error           string                 `json:"error,omitempty"`
	TotalDurationMs int64                  `json:"total_duration_ms"`
}
