package match

// BanLedger records the symmetric "do not rematch" relation between
// participant ids. A ban is added when a pair separates for any reason and
// lives until either id is purged from the registry; there is no expiry and
// no forgiveness within a connection's lifetime.
//
// The ledger is not safe for concurrent use on its own; the Coordinator's
// mutex serializes all access.
type BanLedger struct {
	bans map[string]map[string]struct{}
}

// NewBanLedger creates an empty ledger.
func NewBanLedger() *BanLedger {
	return &BanLedger{bans: make(map[string]map[string]struct{})}
}

// Add records a mutual ban between a and b. Both directions are written in
// the same synchronous call so the relation can never be observed asymmetric.
func (l *BanLedger) Add(a, b string) {
	if a == b || a == "" || b == "" {
		return
	}
	l.add(a, b)
	l.add(b, a)
}

func (l *BanLedger) add(from, to string) {
	set, ok := l.bans[from]
	if !ok {
		set = make(map[string]struct{})
		l.bans[from] = set
	}
	set[to] = struct{}{}
}

// Banned reports whether a and b must not be paired. Both directions are
// checked defensively even though Add always writes both.
func (l *BanLedger) Banned(a, b string) bool {
	if set, ok := l.bans[a]; ok {
		if _, hit := set[b]; hit {
			return true
		}
	}
	if set, ok := l.bans[b]; ok {
		if _, hit := set[a]; hit {
			return true
		}
	}
	return false
}

// Purge drops every ban involving id. Called when the id leaves the registry;
// a future connection from the same human gets a fresh id and a clean slate.
func (l *BanLedger) Purge(id string) {
	peers, ok := l.bans[id]
	if !ok {
		return
	}
	delete(l.bans, id)
	for peer := range peers {
		if set, ok := l.bans[peer]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(l.bans, peer)
			}
		}
	}
}

// Len returns the number of ids that currently hold at least one ban.
func (l *BanLedger) Len() int { return len(l.bans) }
