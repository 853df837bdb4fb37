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

// Package flowlog provides structured logging for the workflow kernel.
// Every entry is one line written through the standard library logger
// (stderr unless redirected with log.SetOutput), holding a JSON object
// after the logger's date/time prefix and tying each log line back to the
// workflow and step that produced it.
package flowlog

import (
	"encoding/json"
	"log"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger emits structured entries scoped to one engine component.
type Logger struct {
	Component string
}

// Entry is a single structured log line.
type Entry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      Level                  `json:"level"`
	Component  string                 `json:"component"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	StepID     string                 `json:"step_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the named component.
func New(component string) *Logger {
	return &Logger{Component: component}
}

// Log writes a structured entry through the standard library logger.
func (l *Logger) Log(level Level, workflowID, stepID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		WorkflowID: workflowID,
		StepID:     stepID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(jsonBytes))
}

// Info logs an informational message.
func (l *Logger) Info(workflowID, stepID, message string, fields map[string]interface{}) {
	l.Log(INFO, workflowID, stepID, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(workflowID, stepID, message string, fields map[string]interface{}) {
	l.Log(WARN, workflowID, stepID, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(workflowID, stepID, message string, fields map[string]interface{}) {
	l.Log(ERROR, workflowID, stepID, message, fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(workflowID, stepID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, workflowID, stepID, message, fields)
}

// InfoWithDuration logs an info message carrying a duration_ms field.
func (l *Logger) InfoWithDuration(workflowID, stepID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(workflowID, stepID, message, fields)
}
