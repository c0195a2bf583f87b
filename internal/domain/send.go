package domain

import "fmt"

// Destination identifies one PACS endpoint by AET, host and port
type Destination struct {
	Name string `mapstructure:"name"`
	AET  string `mapstructure:"aet"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Validate checks if the destination is properly configured
func (d Destination) Validate() error {
	if d.AET == "" {
		return fmt.Errorf("%w: destination %q has no AET", ErrConfig, d.Name)
	}
	if len(d.AET) > 16 {
		return fmt.Errorf("%w: destination %q AET exceeds 16 characters", ErrConfig, d.Name)
	}
	if d.Host == "" {
		return fmt.Errorf("%w: destination %q has no host", ErrConfig, d.Name)
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("%w: destination %q port %d out of range", ErrConfig, d.Name, d.Port)
	}
	return nil
}

// Addr returns the host:port form used to open the association
func (d Destination) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// SendConfig controls the optional DICOM transmission stage
type SendConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Destinations []Destination `mapstructure:"destinations"`
}

// Validate checks every destination when sending is enabled
func (c SendConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Destinations) == 0 {
		return fmt.Errorf("%w: dicom send enabled with no destinations", ErrConfig)
	}
	for _, d := range c.Destinations {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SendStatus is the per-transmission outcome
type SendStatus int

const (
	SendSuccess SendStatus = iota
	SendFailure
)

// String returns the string representation of the status
func (s SendStatus) String() string {
	if s == SendSuccess {
		return "success"
	}
	return "failure"
}

// SendResult records the outcome of transmitting one file to one destination
type SendResult struct {
	File        string
	Destination string
	Status      SendStatus
	Detail      string
}

// FailedCount counts the failures in a result set
func FailedCount(results []SendResult) int {
	n := 0
	for _, r := range results {
		if r.Status == SendFailure {
			n++
		}
	}
	return n
}
