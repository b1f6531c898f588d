package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/config"
	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/model"
	"github.com/werkstatthub/signpad-server-go/internal/repository"
	"github.com/werkstatthub/signpad-server-go/internal/util"
)

// Ambiguous characters (O/I/0/1) are excluded; codes are read off a screen
// and typed on a tablet.
const pairingCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type PairingService struct {
	codeRepo        repository.PairingCodeRepository
	workstationRepo repository.WorkstationRepository
	codeTTL         time.Duration
	streamEndpoint  string
}

func NewPairingService(
	codeRepo repository.PairingCodeRepository,
	workstationRepo repository.WorkstationRepository,
	codeTTL time.Duration,
	streamEndpoint string,
) *PairingService {
	if codeTTL <= 0 || codeTTL > config.MaxPairingCodeTTL {
		codeTTL = 5 * time.Minute
	}
	return &PairingService{
		codeRepo:        codeRepo,
		workstationRepo: workstationRepo,
		codeTTL:         codeTTL,
		streamEndpoint:  streamEndpoint,
	}
}

type GeneratedCode struct {
	Code             string `json:"code"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// GenerateCode issues a short-lived single-use code binding a not-yet-known
// tablet to the requesting workstation and its company. The workstation row
// is upserted so first-time callers need no prior registration step.
func (s *PairingService) GenerateCode(ctx context.Context, workstationID, companyID, workstationName string) (*GeneratedCode, error) {
	if workstationName == "" {
		workstationName = workstationID
	}
	if _, err := s.workstationRepo.Upsert(ctx, workstationID, companyID, workstationName); err != nil {
		return nil, apperrors.Database(err)
	}

	activeCount, err := s.codeRepo.CountActiveByWorkstationID(ctx, workstationID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if activeCount >= config.MaxActiveCodesPerWorkstation {
		return nil, apperrors.TooManyActiveCodes(config.MaxActiveCodesPerWorkstation)
	}

	var pc *model.PairingCode
	for attempts := 0; attempts < 10; attempts++ {
		code := generateRandomCode()
		existing, findErr := s.codeRepo.FindByCode(ctx, code)
		if findErr != nil {
			return nil, apperrors.Database(findErr)
		}
		if existing != nil {
			continue
		}

		pc, err = s.codeRepo.Create(ctx, model.CreatePairingCodeParams{
			Code:          code,
			WorkstationID: workstationID,
			CompanyID:     companyID,
			ExpiresAt:     time.Now().Add(s.codeTTL),
		})
		if err == nil {
			break
		}
	}
	if pc == nil {
		return nil, apperrors.Internal("Failed to allocate a pairing code").WithCause(err)
	}

	log.Info().
		Str("code", util.MaskCode(pc.Code)).
		Str("workstationId", workstationID).
		Str("companyId", companyID).
		Time("expiresAt", pc.ExpiresAt).
		Msg("pairing code created")

	return &GeneratedCode{
		Code:             pc.Code,
		ExpiresInSeconds: int(time.Until(pc.ExpiresAt).Seconds()),
	}, nil
}

// Redeem consumes a pairing code and mints the tablet identity. Unknown,
// already-consumed and expired codes are indistinguishable to the caller. The
// conditional consume in the repository makes redemption exactly-once under
// concurrent attempts.
func (s *PairingService) Redeem(ctx context.Context, code, deviceName string) (*model.TabletCredentials, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, apperrors.InvalidPairingCode()
	}
	if deviceName == "" {
		deviceName = "Signature Pad"
	}

	pc, err := s.codeRepo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pc == nil {
		log.Warn().Str("code", util.MaskCode(normalized)).Msg("unknown pairing code")
		return nil, apperrors.InvalidPairingCode()
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal("Failed to generate device token").WithCause(err)
	}

	// Consume and insert run in one transaction, so a failed insert rolls the
	// consume back and the workstation's code stays valid for a retry.
	tablet, won, err := s.codeRepo.ConsumeAndCreateTablet(ctx, normalized, model.CreateTabletParams{
		ID:            uuid.NewString(),
		CompanyID:     pc.CompanyID,
		Name:          deviceName,
		WorkstationID: &pc.WorkstationID,
		TokenHash:     util.HashToken(token),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !won {
		log.Warn().Str("code", util.MaskCode(normalized)).Msg("pairing code already consumed or expired")
		return nil, apperrors.InvalidPairingCode()
	}

	log.Info().
		Str("tabletId", tablet.ID).
		Str("companyId", tablet.CompanyID).
		Str("workstationId", pc.WorkstationID).
		Msg("tablet paired")

	return &model.TabletCredentials{
		DeviceID:           tablet.ID,
		DeviceToken:        token,
		ConnectionEndpoint: s.streamEndpoint,
	}, nil
}

func generateRandomCode() string {
	chars := []byte(pairingCodeChars)
	part1 := make([]byte, 4)
	part2 := make([]byte, 4)

	for i := 0; i < 4; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		part1[i] = chars[n.Int64()]
	}
	for i := 0; i < 4; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		part2[i] = chars[n.Int64()]
	}

	return fmt.Sprintf("%s-%s", string(part1), string(part2))
}
