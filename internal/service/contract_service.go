package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/contracts"
	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

type ContractService struct {
	api     *api.Client
	archive *contracts.Archive
	log     *zap.Logger
}

// NewContractService creates the service. archive may be nil, in which case
// nothing is kept locally.
func NewContractService(client *api.Client, archive *contracts.Archive, log *zap.Logger) *ContractService {
	return &ContractService{api: client, archive: archive, log: logging.OrNop(log).Named("contracts")}
}

// Download finds the contract of bookingID, downloads its PDF and archives
// it. The returned path is empty without an archive.
func (s *ContractService) Download(ctx context.Context, bookingID int64) ([]byte, string, error) {
	list, err := s.api.ListContracts(ctx)
	if err != nil {
		return nil, "", err
	}

	var contractID int64
	for _, c := range list {
		if c.BookingID == bookingID {
			contractID = c.ID
			break
		}
	}
	if contractID == 0 {
		return nil, "", errors.NewAppError(errors.ErrRecordNotFound, fmt.Sprintf("No contract found for booking %d", bookingID), 0)
	}

	pdf, err := s.api.DownloadContract(ctx, contractID)
	if err != nil {
		return nil, "", err
	}

	if s.archive == nil {
		return pdf, "", nil
	}

	path, err := s.archive.Save(bookingID, pdf)
	if err != nil {
		// The download itself succeeded; keep going without a local copy.
		s.log.Warn("failed to archive contract", zap.Int64("booking_id", bookingID), zap.Error(err))
		return pdf, "", nil
	}
	return pdf, path, nil
}

// Archived returns the locally stored contract of bookingID.
func (s *ContractService) Archived(bookingID int64) ([]byte, error) {
	if s.archive == nil {
		return nil, errors.ErrRecordNotFound
	}
	return s.archive.Open(bookingID)
}
