package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// ErrModeMismatch: la base de estado pertenece a otro modo (live vs dry-run).
var ErrModeMismatch = errors.New("state store belongs to another run mode")

// StateStorage persiste el estado del engine para recuperarlo tras un crash.
type StateStorage interface {
	// BindMode ata el almacén a un modo de ejecución; un modo distinto del
	// registrado devuelve ErrModeMismatch.
	BindMode(ctx context.Context, mode string) error

	// SaveMonitor hace upsert del monitor con todas sus órdenes y posiciones.
	SaveMonitor(ctx context.Context, m *domain.MarketMonitor) error

	// LoadActiveMonitors devuelve los monitores que no están en CLOSED.
	LoadActiveMonitors(ctx context.Context) ([]*domain.MarketMonitor, error)

	// ClosedTickers devuelve los tickers ya cerrados, para no redescubrirlos.
	ClosedTickers(ctx context.Context) (map[string]bool, error)

	// SaveLedger guarda el snapshot del RiskLedger (fila única).
	SaveLedger(ctx context.Context, s domain.LedgerSnapshot) error

	// LoadLedger devuelve el último snapshot guardado; ok=false si no hay.
	LoadLedger(ctx context.Context) (s domain.LedgerSnapshot, ok bool, err error)

	// RecordBankrollChange añade una fila al histórico de bankroll.
	RecordBankrollChange(ctx context.Context, c domain.BankrollChange) error

	// BankrollHistory devuelve los últimos limit cambios, más reciente primero.
	BankrollHistory(ctx context.Context, limit int) ([]domain.BankrollChange, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
