package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/clearledger/reconciler/internal/database"
	"github.com/clearledger/reconciler/internal/modules/ledger"
)

// Service normalizes raw trade and position files into canonical ledger
// records. Every write of a single call runs inside one transaction: a
// file-level failure discards the whole batch, while per-record validation
// failures only skip the offending record.
type Service struct {
	db        *database.DB
	accounts  *ledger.AccountRepository
	trades    *ledger.TradeRepository
	positions *ledger.PositionRepository
	log       zerolog.Logger
}

// NewService creates a new ingestion service
func NewService(
	db *database.DB,
	accounts *ledger.AccountRepository,
	trades *ledger.TradeRepository,
	positions *ledger.PositionRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:        db,
		accounts:  accounts,
		trades:    trades,
		positions: positions,
		log:       log.With().Str("component", "ingestion").Logger(),
	}
}

// Ingest routes the input to the format-specific pipeline based on the
// declared format. An unrecognized format yields a zero-processed report
// with a single error and never touches the store.
func (s *Service) Ingest(fileName, fileFormat string, r io.Reader) *Report {
	report := &Report{
		IngestionID:        uuid.NewString(),
		FileName:           fileName,
		FileFormat:         fileFormat,
		Errors:             []string{},
		Warnings:           []string{},
		CustodiansDetected: []string{},
	}

	log := s.log.With().
		Str("ingestion_id", report.IngestionID).
		Str("file", fileName).
		Str("format", fileFormat).
		Logger()
	log.Info().Msg("Starting ingestion")

	switch fileFormat {
	case ledger.FormatCSVTrades:
		s.ingestCSVTrades(report, r)
	case ledger.FormatPipeTrades:
		s.ingestPipeTrades(report, r)
	case ledger.FormatYAMLBank:
		s.ingestBankSnapshot(report, r)
	default:
		report.Errors = append(report.Errors, fmt.Sprintf("Unknown file format: %s", fileFormat))
		return report
	}

	log.Info().
		Int("valid", report.RecordsValid).
		Int("failed", report.RecordsFailed).
		Int("new_accounts", report.NewAccountsCreated).
		Strs("custodians", report.CustodiansDetected).
		Msg("Ingestion finished")

	return report
}

// ingestCSVTrades handles Format 1: comma-separated dated trades with an
// explicit BUY/SELL type. The stored quantity is negated for SELL.
func (s *Service) ingestCSVTrades(report *Report, r io.Reader) {
	tx, err := s.db.Begin()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}

	// Header is row 1, data starts at row 2.
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		report.RecordsProcessed++

		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}

		validated, err := ValidateCSVTradeRow(zipRow(header, record))
		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}

		created, err := s.accounts.Ensure(tx, validated.AccountID, nil)
		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}
		if created {
			report.NewAccountsCreated++
		}

		quantity := validated.Quantity
		if validated.TradeType == "SELL" {
			quantity = -quantity
		}

		// Market value is derivable here: price times unsigned quantity.
		marketValue := validated.Price.Mul(decimal.NewFromInt(validated.Quantity))
		price := validated.Price
		tradeType := validated.TradeType
		settlementDate := validated.SettlementDate

		trade := ledger.Trade{
			TradeDate:      validated.TradeDate,
			AccountID:      validated.AccountID,
			Ticker:         validated.Ticker,
			Quantity:       quantity,
			Price:          &price,
			TradeType:      &tradeType,
			SettlementDate: &settlementDate,
			MarketValue:    &marketValue,
			FileFormat:     report.FileFormat,
			SourceFile:     report.FileName,
		}
		if err := s.trades.Insert(tx, trade); err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}

		report.RecordsValid++
	}

	if err := tx.Commit(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}
	committed = true
}

// ingestPipeTrades handles Format 2: pipe-delimited trades with signed
// shares and a source system that identifies the custodian.
func (s *Service) ingestPipeTrades(report *Report, r io.Reader) {
	tx, err := s.db.Begin()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	reader := csv.NewReader(r)
	reader.Comma = '|'
	header, err := reader.Read()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}

	custodians := make(map[string]struct{})

	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		report.RecordsProcessed++

		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}

		validated, err := ValidatePipeTradeRow(zipRow(header, record))
		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}

		custodians[validated.SourceSystem] = struct{}{}

		sourceSystem := validated.SourceSystem
		created, err := s.accounts.Ensure(tx, validated.AccountID, &sourceSystem)
		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}
		if created {
			report.NewAccountsCreated++
		}

		marketValue := validated.MarketValue

		trade := ledger.Trade{
			TradeDate:    validated.ReportDate,
			AccountID:    validated.AccountID,
			Ticker:       validated.Ticker,
			Quantity:     validated.Shares,
			Price:        validated.DerivedPrice(),
			MarketValue:  &marketValue,
			SourceSystem: &sourceSystem,
			FileFormat:   report.FileFormat,
			SourceFile:   report.FileName,
		}
		if err := s.trades.Insert(tx, trade); err != nil {
			s.recordFailure(report, fmt.Sprintf("Row %d", rowNum), err)
			continue
		}

		report.RecordsValid++
	}

	if err := tx.Commit(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}
	committed = true

	report.CustodiansDetected = sortedKeys(custodians)
}

// ingestBankSnapshot handles Format 3: a YAML document with one report date
// and a list of custodian positions. A document that fails to parse, or an
// invalid report date, aborts the whole call.
func (s *Service) ingestBankSnapshot(report *Report, r io.Reader) {
	data, err := io.ReadAll(r)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}

	var doc BankSnapshotFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}

	// A document without a positions list is malformed; an explicitly empty
	// list is a valid zero-record snapshot.
	if doc.Positions == nil {
		report.Errors = append(report.Errors, "File processing error: positions list is required")
		return
	}

	reportDate, err := ValidateReportDate(strings.TrimSpace(doc.ReportDate.Value))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	custodians := make(map[string]struct{})

	for i, entry := range doc.Positions {
		report.RecordsProcessed++

		validated, err := ValidateBankPosition(entry)
		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Position record %d", i+1), err)
			continue
		}

		var custodianPtr *string
		if custodian := ExtractCustodianName(validated.CustodianRef); custodian != "" {
			custodians[custodian] = struct{}{}
			custodianPtr = &custodian
		}

		created, err := s.accounts.Ensure(tx, validated.AccountID, custodianPtr)
		if err != nil {
			s.recordFailure(report, fmt.Sprintf("Position record %d", i+1), err)
			continue
		}
		if created {
			report.NewAccountsCreated++
		}

		var refPtr *string
		if validated.CustodianRef != "" {
			ref := validated.CustodianRef
			refPtr = &ref
		}

		pos := ledger.Position{
			ReportDate:   reportDate,
			AccountID:    validated.AccountID,
			Ticker:       validated.Ticker,
			Shares:       validated.Shares,
			MarketValue:  validated.MarketValue,
			CustodianRef: refPtr,
			SourceFile:   report.FileName,
		}
		if err := s.positions.Insert(tx, pos); err != nil {
			s.recordFailure(report, fmt.Sprintf("Position record %d", i+1), err)
			continue
		}

		report.RecordsValid++
	}

	if err := tx.Commit(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("File processing error: %v", err))
		return
	}
	committed = true

	report.CustodiansDetected = sortedKeys(custodians)
}

func (s *Service) recordFailure(report *Report, position string, err error) {
	report.RecordsFailed++
	msg := fmt.Sprintf("%s: %v", position, err)
	report.Errors = append(report.Errors, msg)
	s.log.Warn().Str("file", report.FileName).Msg(msg)
}

// zipRow maps header names to row values by column position.
func zipRow(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(record) {
			row[strings.TrimSpace(name)] = record[i]
		}
	}
	return row
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
