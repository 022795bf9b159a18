package domain

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// EventKind names a ledger transition.
type EventKind string

const (
	EventDeposit          EventKind = "VAULT_DEPOSIT"
	EventWithdraw         EventKind = "VAULT_WITHDRAW"
	EventAllocate         EventKind = "VAULT_ALLOCATE"
	EventRelease          EventKind = "VAULT_RELEASE"
	EventFeeIncome        EventKind = "VAULT_FEE_INCOME"
	EventVaultLoss        EventKind = "VAULT_LOSS"
	EventMint             EventKind = "ERT_MINTED"
	EventExpire           EventKind = "ERT_EXPIRED"
	EventSettle           EventKind = "ERT_SETTLED"
	EventPositionOpen     EventKind = "POSITION_OPENED"
	EventPositionClose    EventKind = "POSITION_CLOSED"
	EventStakeSlash       EventKind = "STAKE_SLASHED"
	EventStakePayout      EventKind = "STAKE_PAYOUT"
	EventExecutorProfit   EventKind = "EXECUTOR_PROFIT"
	EventReserveCredit    EventKind = "RESERVE_CREDIT"
	EventReserveDraw      EventKind = "RESERVE_DRAW"
	EventReputation       EventKind = "REPUTATION_UPDATED"
	EventExecutorRegister EventKind = "EXECUTOR_REGISTERED"
	EventWhitelist        EventKind = "EXECUTOR_WHITELISTED"
	EventBan              EventKind = "EXECUTOR_BANNED"
	EventUnban            EventKind = "EXECUTOR_UNBANNED"
	EventBreakerTrip      EventKind = "BREAKER_TRIPPED"
	EventBreakerReset     EventKind = "BREAKER_RESET"
)

// LedgerEvent is one append-only audit entry.
type LedgerEvent struct {
	ID     string
	Kind   EventKind
	Entity string // e.g. "ert:<id>", "depositor:<addr>", "vault"
	Amount decimal.Decimal
	Detail string
	At     time.Time
}

var (
	idMu   sync.Mutex
	idMono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	idMono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewEventID returns a time-sortable ULID.
func NewEventID(now time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now.UTC()), idMono).String()
}

// NewEvent stamps an event with a fresh id.
func NewEvent(kind EventKind, entity string, amount decimal.Decimal, detail string, now time.Time) LedgerEvent {
	return LedgerEvent{
		ID:     NewEventID(now),
		Kind:   kind,
		Entity: entity,
		Amount: amount,
		Detail: detail,
		At:     now,
	}
}

// Settlement is the persisted outcome of a settled execution right.
type Settlement struct {
	ERTID     string
	Executor  string
	Breakdown Breakdown
	Outcome   SettlementOutcome
	Forced    bool
	Tripped   bool // the breaker tripped as a result of this settlement
	SettledAt time.Time
	SettledBy string
}
