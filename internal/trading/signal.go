package trading

// Signal is one decoded webhook payload. AmountPercent is a pointer so an
// absent field (use the default) stays distinguishable from an explicit 0
// (rejected by the range check).
type Signal struct {
	Action        string `json:"action"`
	Ticker        string `json:"ticker"`
	AmountPercent *int   `json:"amountPercent"`
	Password      string `json:"password"`
}

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) IsBuy() bool { return s == SideLong }
