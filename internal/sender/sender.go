// Package sender transmits DICOM files to configured destinations
// over C-STORE associations.
package sender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caio-sobreiro/dicomnet/client"
	netdicom "github.com/caio-sobreiro/dicomnet/dicom"

	"github.com/Project-Laminate/flairstar/internal/domain"
	"github.com/Project-Laminate/flairstar/internal/logger"
)

var (
	tagSOPClassUID    = netdicom.Tag{Group: 0x0008, Element: 0x0016}
	tagSOPInstanceUID = netdicom.Tag{Group: 0x0008, Element: 0x0018}
)

// Association is the subset of a C-STORE association the sender uses.
type Association interface {
	SendCStore(req *client.CStoreRequest) (*client.CStoreResponse, error)
	Close() error
}

// DialFunc opens an association with a destination.
type DialFunc func(addr string, cfg client.Config) (Association, error)

// Sender pushes files to every enabled destination. Failures are
// recorded per file and never stop the remaining transmissions.
type Sender struct {
	callingAET string
	dial       DialFunc
}

// Option configures a Sender.
type Option func(*Sender)

// WithDialFunc overrides how associations are opened.
func WithDialFunc(dial DialFunc) Option {
	return func(s *Sender) { s.dial = dial }
}

func New(callingAET string, opts ...Option) *Sender {
	s := &Sender{
		callingAET: callingAET,
		dial: func(addr string, cfg client.Config) (Association, error) {
			return client.Connect(addr, cfg)
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send transmits files to every destination in cfg. The returned
// results cover each file/destination pair; the error is ErrSend when
// any transmission failed, with the results still populated.
func (s *Sender) Send(ctx context.Context, files []string, cfg domain.SendConfig) ([]domain.SendResult, error) {
	if !cfg.Enabled || len(files) == 0 {
		return nil, nil
	}

	var results []domain.SendResult
	for _, dest := range cfg.Destinations {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		results = append(results, s.sendToDestination(ctx, files, dest)...)
	}

	if n := domain.FailedCount(results); n > 0 {
		return results, fmt.Errorf("%w: %d of %d transmissions failed",
			domain.ErrSend, n, len(results))
	}
	return results, nil
}

func (s *Sender) sendToDestination(ctx context.Context, files []string, dest domain.Destination) []domain.SendResult {
	log := logger.With("destination", dest.Name, "aet", dest.AET, "addr", dest.Addr())
	log.Info("opening association", "files", len(files))

	assoc, err := s.dial(dest.Addr(), client.Config{
		CallingAETitle: s.callingAET,
		CalledAETitle:  dest.AET,
		Logger:         logger.Slog(),
	})
	if err != nil {
		log.Error("association failed", "error", err)
		results := make([]domain.SendResult, len(files))
		for i, f := range files {
			results[i] = domain.SendResult{
				File:        f,
				Destination: dest.Name,
				Status:      domain.SendFailure,
				Detail:      fmt.Sprintf("connect: %v", err),
			}
		}
		return results
	}
	defer assoc.Close()

	results := make([]domain.SendResult, 0, len(files))
	for i, path := range files {
		select {
		case <-ctx.Done():
			results = append(results, domain.SendResult{
				File:        path,
				Destination: dest.Name,
				Status:      domain.SendFailure,
				Detail:      ctx.Err().Error(),
			})
			continue
		default:
		}
		results = append(results, s.sendFile(assoc, dest, path, uint16(i+1)))
	}

	log.Info("association finished",
		"files", len(files), "failed", domain.FailedCount(results))
	return results
}

func (s *Sender) sendFile(assoc Association, dest domain.Destination, path string, messageID uint16) domain.SendResult {
	result := domain.SendResult{File: path, Destination: dest.Name, Status: domain.SendFailure}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Detail = fmt.Sprintf("read: %v", err)
		return result
	}

	payload, err := netdicom.StripPart10Header(data)
	if err != nil {
		result.Detail = fmt.Sprintf("part10: %v", err)
		return result
	}
	ds, err := netdicom.ParseDataset(payload)
	if err != nil {
		result.Detail = fmt.Sprintf("dataset: %v", err)
		return result
	}
	sopClass := ds.GetString(tagSOPClassUID)
	sopInstance := ds.GetString(tagSOPInstanceUID)
	if sopClass == "" || sopInstance == "" {
		result.Detail = "missing SOP class or instance UID"
		return result
	}

	resp, err := assoc.SendCStore(&client.CStoreRequest{
		SOPClassUID:    sopClass,
		SOPInstanceUID: sopInstance,
		Data:           payload,
		MessageID:      messageID,
	})
	if err != nil {
		result.Detail = fmt.Sprintf("c-store: %v", err)
		return result
	}

	switch resp.Status {
	case 0x0000:
		result.Status = domain.SendSuccess
	case 0xB000, 0xB006, 0xB007:
		result.Status = domain.SendSuccess
		result.Detail = fmt.Sprintf("stored with warning status 0x%04X", resp.Status)
		logger.With("destination", dest.Name).Warn("store accepted with warning",
			"file", filepath.Base(path), "status", fmt.Sprintf("0x%04X", resp.Status))
	default:
		result.Detail = fmt.Sprintf("rejected with status 0x%04X", resp.Status)
	}
	return result
}
