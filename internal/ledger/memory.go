package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// AppendHook lets tests fail selected writes. A non-nil return fails the call
// before anything is written.
type AppendHook func(identity string, start int, records []Line) error

type memProgram struct {
	config    ProgramConfig
	uuid      string
	authority string
	data      []byte
}

type memPublisher struct {
	params PublisherParams
}

// Memory is an in-process ledger that keeps real account layouts. It serves
// dry runs and tests.
type Memory struct {
	mu         sync.Mutex
	authority  string
	programs   map[string]*memProgram
	publishers map[string]*memPublisher
	appendHook AppendHook
	appends    int
	inits      int
}

// NewMemory returns an empty ledger that signs as authority.
func NewMemory(authority string) *Memory {
	if authority == "" {
		authority = "memory-authority"
	}
	return &Memory{
		authority:  authority,
		programs:   make(map[string]*memProgram),
		publishers: make(map[string]*memPublisher),
	}
}

// SetAppendHook installs h for subsequent AppendRecords calls.
func (m *Memory) SetAppendHook(h AppendHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendHook = h
}

// Appends counts AppendRecords calls that reached the ledger, failed or not.
func (m *Memory) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

// Initializations counts InitializeProgram calls.
func (m *Memory) Initializations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inits
}

func (m *Memory) InitializeProgram(ctx context.Context, cfg ProgramConfig) (ProgramIdentity, error) {
	if err := ctx.Err(); err != nil {
		return ProgramIdentity{}, err
	}
	if cfg.MaxItems <= 0 {
		return ProgramIdentity{}, fmt.Errorf("program needs a positive item capacity, got %d", cfg.MaxItems)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++

	id := uuid.New().String()
	p := &memProgram{
		config:    cfg,
		uuid:      id[:6],
		authority: m.authority,
		data:      make([]byte, AccountSize(cfg.MaxItems)),
	}
	identity := "program-" + id
	m.programs[identity] = p
	return ProgramIdentity{Identity: identity, UUID: p.uuid, TxID: "tx-" + id, Authority: m.authority}, nil
}

func (m *Memory) program(identity string) (*memProgram, error) {
	p, ok := m.programs[identity]
	if !ok {
		return nil, &NotFoundError{Kind: "program", Address: identity}
	}
	return p, nil
}

func (m *Memory) AppendRecords(ctx context.Context, identity string, start int, records []Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++

	if m.appendHook != nil {
		if err := m.appendHook(identity, start, records); err != nil {
			return err
		}
	}
	p, err := m.program(identity)
	if err != nil {
		return err
	}
	if start < 0 || start+len(records) > p.config.MaxItems {
		return fmt.Errorf("records %d..%d exceed program capacity %d", start, start+len(records)-1, p.config.MaxItems)
	}

	// The whole batch is checked before the account is touched.
	for _, r := range records {
		if err := checkLine(r); err != nil {
			return err
		}
	}
	for i, r := range records {
		if err := EncodeLine(p.data, start+i, r); err != nil {
			return err
		}
	}

	count, _ := LineCount(p.data)
	if end := start + len(records); end > count {
		_ = SetLineCount(p.data, end)
	}
	return nil
}

func (m *Memory) ReadRawAccount(ctx context.Context, identity string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.program(identity)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out, nil
}

func (m *Memory) ReadDecodedAccount(ctx context.Context, identity string) (*AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.program(identity)
	if err != nil {
		return nil, err
	}
	count, err := LineCount(p.data)
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		MaxItemCount: p.config.MaxItems,
		ItemCount:    count,
		Authority:    p.authority,
		UUID:         p.uuid,
		Symbol:       p.config.Symbol,
	}, nil
}

func (m *Memory) CreatePublisher(ctx context.Context, params PublisherParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.program(params.Program); err != nil {
		return "", err
	}
	address := "publisher-" + uuid.New().String()
	m.publishers[address] = &memPublisher{params: params}
	return address, nil
}

func (m *Memory) UpdatePublisher(ctx context.Context, address string, params UpdateParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pub, ok := m.publishers[address]
	if !ok {
		return &NotFoundError{Kind: "publisher", Address: address}
	}
	if params.Price != nil {
		pub.params.Price = *params.Price
	}
	if params.StartDate != nil {
		pub.params.StartDate = *params.StartDate
	}
	return nil
}

// Publisher returns the current parameters of a publisher.
func (m *Memory) Publisher(address string) (PublisherParams, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pub, ok := m.publishers[address]
	if !ok {
		return PublisherParams{}, false
	}
	return pub.params, true
}

// OverwriteLine replaces the line at slot without touching the item count.
// Tests use it to simulate ledger state that disagrees with local progress.
func (m *Memory) OverwriteLine(identity string, slot int, l Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.program(identity)
	if err != nil {
		return err
	}
	return EncodeLine(p.data, slot, l)
}
