package entity

import "time"

// Supplier is a vendor under onboarding. Name is the business key.
type Supplier struct {
	ID                int64          `json:"id"`
	Name              string         `json:"supplierName"`
	MainAddress       Address        `json:"mainAddress"`
	PrimaryContact    Contact        `json:"primaryContact"`
	CategoryAndRegion CategoryRegion `json:"categoryAndRegion"`
	AdditionalInfo    AdditionalInfo `json:"additionalInfo"`
	Status            string         `json:"status"`
	BusinessPartnerID string         `json:"businessPartnerId,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Address is the supplier's main postal address.
type Address struct {
	Street     string `json:"street"`
	Line2      string `json:"line2,omitempty"`
	Line3      string `json:"line3,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Region     string `json:"region"`
}

// Contact is the supplier's primary contact person.
type Contact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CategoryRegion classifies what the supplier sells and where.
type CategoryRegion struct {
	Category string `json:"category"`
	Region   string `json:"region"`
}

// AdditionalInfo holds free text entered at submission.
type AdditionalInfo struct {
	Details string `json:"details"`
}

// IsTerminal reports whether the supplier reached APPROVED or REJECTED.
func (s *Supplier) IsTerminal() bool {
	return s.Status == StatusApproved || s.Status == StatusRejected
}

// SupplierFilter narrows supplier listings.
// Name and City match by substring, Status by equality.
type SupplierFilter struct {
	Name   string
	City   string
	Status string
	Limit  int
	Offset int
}
