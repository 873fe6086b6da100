// Package host adapts inbound transports to pipeline runs. Each host turns
// the pipeline's completion signal into its own acknowledgement.
package host

import "github.com/Fullex26/smsrelay/internal/pipeline"

// Runner executes one pipeline run
type Runner interface {
	Run(raw []byte, done func()) pipeline.Result
}
