package models

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the immutable set of purposes a school processes data for.
type Catalog struct {
	ordered []Purpose
	byCode  map[string]Purpose
}

type catalogFile struct {
	Purposes []Purpose `yaml:"purposes"`
}

// NewCatalog validates purposes and builds a catalog. Codes are unique,
// categories known and retention non-negative.
func NewCatalog(purposes []Purpose) (*Catalog, error) {
	if len(purposes) == 0 {
		return nil, errors.New("catalog has no purposes")
	}
	c := &Catalog{byCode: make(map[string]Purpose, len(purposes))}
	var errs []error
	for i, p := range purposes {
		p.Code = strings.TrimSpace(p.Code)
		switch {
		case p.Code == "":
			errs = append(errs, fmt.Errorf("purpose %d: code is required", i))
			continue
		case !p.Category.IsValid():
			errs = append(errs, fmt.Errorf("purpose %s: unknown category %q", p.Code, p.Category))
		case p.RetentionPeriodDays < 0:
			errs = append(errs, fmt.Errorf("purpose %s: retention_period_days must not be negative", p.Code))
		}
		if _, dup := c.byCode[p.Code]; dup {
			errs = append(errs, fmt.Errorf("purpose %s: duplicate code", p.Code))
			continue
		}
		if p.Name == "" {
			p.Name = p.Code
		}
		c.byCode[p.Code] = p
		c.ordered = append(c.ordered, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseCatalog decodes a YAML catalog, rejecting unknown fields.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(f.Purposes)
}

// LoadCatalog reads a YAML catalog from path, or returns the built-in
// catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func (c *Catalog) Lookup(code string) (Purpose, bool) {
	p, ok := c.byCode[code]
	return p, ok
}

// List returns purposes in catalog order.
func (c *Catalog) List() []Purpose {
	return append([]Purpose(nil), c.ordered...)
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultPurposes)
	if err != nil {
		panic(fmt.Sprintf("built-in consent catalog is invalid: %v", err))
	}
	return c
}

var defaultPurposes = []Purpose{
	{
		Code:                "ACADEMIC_RECORDS",
		Name:                "Academic records",
		Description:         "Enrolment, grades, report cards and transcripts.",
		Category:            CategoryEducational,
		IsMandatory:         true,
		RetentionPeriodDays: 1825,
		LegalBasis:          "Legal obligation",
	},
	{
		Code:                "ATTENDANCE",
		Name:                "Attendance tracking",
		Description:         "Daily attendance and absence notifications.",
		Category:            CategoryAdministrative,
		IsMandatory:         true,
		RetentionPeriodDays: 1095,
		LegalBasis:          "Legal obligation",
	},
	{
		Code:                "FEE_PROCESSING",
		Name:                "Fee processing",
		Description:         "Invoices, receipts and payment reconciliation.",
		Category:            CategoryFinancial,
		IsMandatory:         true,
		RetentionPeriodDays: 2555,
		LegalBasis:          "Contract",
	},
	{
		Code:                "PARENT_COMMUNICATION",
		Name:                "Parent communication",
		Description:         "Newsletters and event announcements.",
		Category:            CategoryCommunication,
		RetentionPeriodDays: 365,
		LegalBasis:          "Consent",
	},
	{
		Code:                "PHOTO_PUBLICATION",
		Name:                "Photo publication",
		Description:         "Publishing photos of school events on the website.",
		Category:            CategoryCommunication,
		RetentionPeriodDays: 0,
		LegalBasis:          "Consent",
	},
	{
		Code:                "HEALTH_RECORDS",
		Name:                "Health records",
		Description:         "Allergies, medication and infirmary visits.",
		Category:            CategoryHealth,
		RetentionPeriodDays: 365,
		LegalBasis:          "Explicit consent",
	},
	{
		Code:                "ANALYTICS",
		Name:                "Learning analytics",
		Description:         "Aggregated usage statistics to improve teaching.",
		Category:            CategoryAnalytics,
		RetentionPeriodDays: 180,
		LegalBasis:          "Consent",
	},
	{
		Code:                "EDTECH_SHARING",
		Name:                "Sharing with learning platforms",
		Description:         "Account provisioning on third-party learning platforms.",
		Category:            CategoryThirdParty,
		RetentionPeriodDays: 90,
		LegalBasis:          "Consent",
	},
}
