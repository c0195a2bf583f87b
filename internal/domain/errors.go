package domain

import "errors"

// Configuration errors - surface before any external tool runs
var (
	// ErrConfig indicates unresolvable or malformed configuration
	ErrConfig = errors.New("invalid configuration")

	// ErrRule indicates a structurally invalid matching rule
	ErrRule = errors.New("invalid rule")

	// ErrTaskFileNotFound indicates no task.json next to the input data
	ErrTaskFileNotFound = errors.New("task file not found")
)

// Selection errors
var (
	// ErrMatch indicates zero or multiple series satisfied a pattern,
	// or an explicitly requested SeriesInstanceUID was not found
	ErrMatch = errors.New("series selection failed")

	// ErrNoSeries indicates the input directory contained no readable DICOM series
	ErrNoSeries = errors.New("no DICOM series found")
)

// Processing errors - external collaborator failures
var (
	// ErrConversion indicates a DICOM/volume conversion failure
	ErrConversion = errors.New("conversion failed")

	// ErrCombination indicates the FLAIR-STAR combination step failed
	ErrCombination = errors.New("combination failed")
)

// Delivery errors
var (
	// ErrSend indicates at least one (file, destination) transmission failed
	ErrSend = errors.New("dicom send failed")
)

// Run coordination errors
var (
	// ErrRunInProgress indicates another run holds the temp workspace lock
	ErrRunInProgress = errors.New("run already in progress")
)
