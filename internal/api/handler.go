// Package api exposes the ledger over HTTP for the operator frontend.
//
// Receipt uploads carry the operator's decision about unknown clients in
// the form itself (create_clients and new_client_baseline), so a request
// is self-contained and never blocks waiting for a human.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/ledger"
	"github.com/insightdelivered/receipt-ledger/internal/models"
	"github.com/insightdelivered/receipt-ledger/internal/patterns"
	"github.com/insightdelivered/receipt-ledger/internal/pipeline"
	"github.com/insightdelivered/receipt-ledger/internal/report"
	"github.com/insightdelivered/receipt-ledger/internal/resolver"
)

// Store is the full ledger surface the API serves. Both the Postgres store
// and the in-memory store satisfy it.
type Store interface {
	Ping(ctx context.Context) error
	CreateClient(ctx context.Context, fio, phone, account string, totalDebt decimal.Decimal) (int64, error)
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	FindClient(ctx context.Context, fio, phone, account string) (*models.Client, error)
	UpdateClient(ctx context.Context, id int64, upd ledger.ClientUpdate) error
	DeleteClient(ctx context.Context, id int64) error
	ListClients(ctx context.Context) ([]models.Client, error)
	AddPayment(ctx context.Context, p *models.Payment) (int64, error)
	AddManualPayment(ctx context.Context, clientID int64, amount decimal.Decimal, paymentDate, description string) (int64, error)
	DeletePayment(ctx context.Context, id int64) error
	ListPayments(ctx context.Context) ([]models.PaymentRow, error)
	ApplyDiscount(ctx context.Context, clientID int64, amount decimal.Decimal) (decimal.Decimal, error)
	RemainingDebt(ctx context.Context, clientID int64) (decimal.Decimal, error)
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	ClientSummaries(ctx context.Context) ([]models.ClientSummary, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	store     Store
	extractor pipeline.TextExtractor
	patterns  *patterns.Config
	log       zerolog.Logger
}

// NewServer wires the API handlers.
func NewServer(store Store, extractor pipeline.TextExtractor, cfg *patterns.Config, log zerolog.Logger) *Server {
	return &Server{store: store, extractor: extractor, patterns: cfg, log: log}
}

// RegisterRoutes sets up the HTTP routes.
func (s *Server) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api")

	api.Get("/health", s.handleHealth)
	api.Post("/receipts", s.handleReceipts)

	api.Get("/clients", s.handleListClients)
	api.Post("/clients", s.handleCreateClient)
	api.Get("/clients/:id", s.handleGetClient)
	api.Patch("/clients/:id", s.handleUpdateClient)
	api.Delete("/clients/:id", s.handleDeleteClient)
	api.Post("/clients/:id/payments", s.handleManualPayment)
	api.Post("/clients/:id/discount", s.handleDiscount)

	api.Get("/payments", s.handleListPayments)
	api.Delete("/payments/:id", s.handleDeletePayment)

	api.Get("/stats", s.handleStats)
	api.Get("/report", s.handleReport)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := "ok"
	if err := s.store.Ping(c.Context()); err != nil {
		status = "degraded"
	}
	return c.JSON(fiber.Map{"status": status})
}

// handleReceipts accepts one or more uploaded receipt files and runs them
// through the reconciliation pipeline. Unknown clients are created only when
// the form says create_clients=true; new_client_baseline sets their starting
// debt.
func (s *Server) handleReceipts(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "multipart form required")
	}
	files := form.File["file"]
	if len(files) == 0 {
		return badRequest(c, "no files uploaded, use form field 'file'")
	}

	createNew := c.FormValue("create_clients") == "true"
	baseline := decimal.Zero
	if v := c.FormValue("new_client_baseline"); v != "" {
		baseline, err = decimal.NewFromString(v)
		if err != nil || baseline.IsNegative() {
			return badRequest(c, "new_client_baseline must be a non-negative number")
		}
	}
	confirm := func(name string) resolver.Decision {
		return resolver.Decision{Accept: createNew, BaselineDebt: baseline}
	}

	proc := pipeline.New(pipeline.Config{
		Extractor: s.extractor,
		Patterns:  s.patterns,
		Store:     s.store,
		Resolver:  resolver.New(s.store, confirm),
		Logger:    s.log,
	})

	docs := make([]pipeline.Document, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return badRequest(c, fmt.Sprintf("cannot open upload %q", fh.Filename))
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return badRequest(c, fmt.Sprintf("cannot read upload %q", fh.Filename))
		}
		docs = append(docs, pipeline.Document{Name: fh.Filename, Data: data})
	}

	outcomes, err := proc.ProcessBatch(c.Context(), docs)
	if errors.Is(err, pipeline.ErrStoreUnavailable) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":    "storage unavailable",
			"outcomes": outcomes,
		})
	}
	return c.JSON(fiber.Map{"outcomes": outcomes})
}

type clientRequest struct {
	FIO       string           `json:"fio"`
	Phone     *string          `json:"phone"`
	Account   *string          `json:"account"`
	TotalDebt *decimal.Decimal `json:"total_debt"`
}

func (s *Server) handleCreateClient(c *fiber.Ctx) error {
	var req clientRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if strings.TrimSpace(req.FIO) == "" {
		return badRequest(c, "fio is required")
	}
	debt := decimal.Zero
	if req.TotalDebt != nil {
		debt = *req.TotalDebt
	}
	if debt.IsNegative() {
		return badRequest(c, "total_debt must be non-negative")
	}
	id, err := s.store.CreateClient(c.Context(), strings.TrimSpace(req.FIO),
		deref(req.Phone), deref(req.Account), debt)
	if err != nil {
		return storeError(c, err)
	}
	client, err := s.store.GetClient(c.Context(), id)
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(client)
}

func (s *Server) handleGetClient(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	client, err := s.store.GetClient(c.Context(), int64(id))
	if errors.Is(err, ledger.ErrNotFound) {
		return notFound(c, "client not found")
	}
	if err != nil {
		return storeError(c, err)
	}
	remaining, err := s.store.RemainingDebt(c.Context(), client.ID)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"client": client, "remaining_debt": remaining})
}

func (s *Server) handleUpdateClient(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	var req clientRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	upd := ledger.ClientUpdate{
		Phone:     req.Phone,
		Account:   req.Account,
		TotalDebt: req.TotalDebt,
	}
	if req.FIO != "" {
		fio := strings.TrimSpace(req.FIO)
		upd.FIO = &fio
	}
	if req.TotalDebt != nil && req.TotalDebt.IsNegative() {
		return badRequest(c, "total_debt must be non-negative")
	}
	err = s.store.UpdateClient(c.Context(), int64(id), upd)
	if errors.Is(err, ledger.ErrNotFound) {
		return notFound(c, "client not found")
	}
	if err != nil {
		return storeError(c, err)
	}
	client, err := s.store.GetClient(c.Context(), int64(id))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(client)
}

func (s *Server) handleDeleteClient(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	err = s.store.DeleteClient(c.Context(), int64(id))
	if errors.Is(err, ledger.ErrNotFound) {
		return notFound(c, "client not found")
	}
	if err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListClients(c *fiber.Ctx) error {
	summaries, err := s.store.ClientSummaries(c.Context())
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"clients": summaries})
}

type manualPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Description string          `json:"description"`
}

func (s *Server) handleManualPayment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	var req manualPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if !req.Amount.IsPositive() {
		return badRequest(c, "amount must be positive")
	}
	_, err = s.store.AddManualPayment(c.Context(), int64(id), req.Amount,
		req.PaymentDate, req.Description)
	if errors.Is(err, ledger.ErrNotFound) {
		return notFound(c, "client not found")
	}
	if err != nil {
		return storeError(c, err)
	}
	remaining, err := s.store.RemainingDebt(c.Context(), int64(id))
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"remaining_debt": remaining})
}

type discountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleDiscount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	var req discountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if !req.Amount.IsPositive() {
		return badRequest(c, "amount must be positive")
	}
	remaining, err := s.store.ApplyDiscount(c.Context(), int64(id), req.Amount)
	if errors.Is(err, ledger.ErrNotFound) {
		return notFound(c, "client not found")
	}
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"remaining_debt": remaining})
}

func (s *Server) handleListPayments(c *fiber.Ctx) error {
	payments, err := s.store.ListPayments(c.Context())
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

func (s *Server) handleDeletePayment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid payment id")
	}
	err = s.store.DeletePayment(c.Context(), int64(id))
	if errors.Is(err, ledger.ErrNotFound) {
		return notFound(c, "payment not found")
	}
	if err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.store.Stats(c.Context())
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(stats)
}

// handleReport streams the ledger export. The default is an Excel workbook;
// ?format=csv switches to the payment history CSV.
func (s *Server) handleReport(c *fiber.Ctx) error {
	switch c.Query("format", "xlsx") {
	case "csv":
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="payments.csv"`)
		w := &report.CSVWriter{IncludeSummary: true}
		return w.Write(c.Context(), s.store, c.Response().BodyWriter())
	case "xlsx":
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="ledger.xlsx"`)
		return report.WriteExcel(c.Context(), s.store, c.Response().BodyWriter())
	default:
		return badRequest(c, "unknown format, use xlsx or csv")
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg})
}

func storeError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
