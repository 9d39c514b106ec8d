package domain

type AttributionKind string

const (
	AttributionStaff  AttributionKind = "staff"
	AttributionExempt AttributionKind = "exempt"
)

// Attribution records who an order is credited to: a real staff member, or an
// exemption granted by the order type for fast-lane checkout.
type Attribution struct {
	Kind      AttributionKind `json:"kind"`
	StaffID   int64           `json:"staff_id,omitempty"`
	StaffName string          `json:"staff_name"`
	Reason    string          `json:"reason,omitempty"`
}

var exemptDisplayNames = map[string]string{
	OrderTypeBarSale:     "Bar Staff",
	OrderTypeSelfService: "Customer (QR)",
}

func Attributed(staffID int64, staffName string) Attribution {
	return Attribution{Kind: AttributionStaff, StaffID: staffID, StaffName: staffName}
}

// ExemptionFor reports whether orderType skips the staff identity check and
// returns the attribution such orders carry.
func ExemptionFor(orderType string) (Attribution, bool) {
	name, ok := exemptDisplayNames[orderType]
	if !ok {
		return Attribution{}, false
	}
	return Attribution{Kind: AttributionExempt, StaffName: name, Reason: orderType}, true
}

func (a Attribution) IsExempt() bool {
	return a.Kind == AttributionExempt
}

func (a Attribution) StaffIDPtr() *int64 {
	if a.Kind != AttributionStaff || a.StaffID == 0 {
		return nil
	}
	id := a.StaffID
	return &id
}
