// Package model holds the invoice, report and run types shared across the
// fetch, extract and send stages.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// Document type names written to the TYPE column.
const (
	TypeInvoice    = "Invoice"
	TypeCreditNote = "Credit Note"
	TypeDebitNote  = "Debit Note"
)

var documentTypes = map[string]string{
	"i":           TypeInvoice,
	"invoice":     TypeInvoice,
	"c":           TypeCreditNote,
	"credit note": TypeCreditNote,
	"d":           TypeDebitNote,
	"debit note":  TypeDebitNote,
}

// MapDocumentType expands a portal type code to its display name. Empty input
// is treated as an invoice; unknown values pass through unchanged.
func MapDocumentType(raw string) string {
	if raw == "" {
		return TypeInvoice
	}
	if name, ok := documentTypes[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return name
	}
	return raw
}

// Address is the receiver address block. Only the fields the extractor or the
// report touch are kept.
type Address struct {
	Landmark              string `json:"landmark,omitempty"`
	AdditionalInformation string `json:"additionalInformation,omitempty"`
	BuildingNumber        string `json:"buildingNumber,omitempty"`
	PostalCode            string `json:"postalCode,omitempty"`
}

// Party is an issuer or receiver.
type Party struct {
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name,omitempty"`
	Address Address `json:"address"`
}

// InvoiceLine is a single line item.
type InvoiceLine struct {
	Description string `json:"description,omitempty"`
}

// InvoiceDocument is a received e-invoice: the portal envelope plus the inner
// signed document. Absent fields are empty strings.
type InvoiceDocument struct {
	// Envelope fields.
	UUID             string `json:"uuid"`
	InternalID       string `json:"internalId"`
	IssuerName       string `json:"issuerName"`
	IssuerID         string `json:"issuerId"`
	ReceiverID       string `json:"receiverId"`
	TypeName         string `json:"typeName"`
	TypeVersionName  string `json:"typeVersionName"`
	Total            string `json:"total"`
	EnvelopeStatus   string `json:"status"`
	DateTimeReceived string `json:"dateTimeReceived"`

	// Inner document fields.
	Issuer                 Party         `json:"issuer"`
	Receiver               Party         `json:"receiver"`
	ProformaInvoiceNumber  string        `json:"proformaInvoiceNumber,omitempty"`
	PurchaseOrderReference string        `json:"purchaseOrderReference,omitempty"`
	SalesOrderReference    string        `json:"salesOrderReference,omitempty"`
	InvoiceLines           []InvoiceLine `json:"invoiceLines,omitempty"`
	DocumentStatus         string        `json:"documentStatus,omitempty"`

	// Text is the serialized inner document, scanned for numbers written
	// next to a registration number.
	Text string `json:"-"`
	// NestedInvalid is set when the envelope carried a document string that
	// was not valid JSON; inner fields then come from the envelope itself.
	NestedInvalid bool `json:"-"`
}

// ParseDocument decodes a raw portal payload. The inner document may be a JSON
// string under "document", an object under "document", or the payload itself.
func ParseDocument(raw []byte) (*InvoiceDocument, error) {
	if !gjson.ValidBytes(raw) {
		return nil, eris.New("model: invoice payload is not valid JSON")
	}
	env := gjson.ParseBytes(raw)
	if !env.IsObject() {
		return nil, eris.New("model: invoice payload is not a JSON object")
	}

	doc := &InvoiceDocument{
		UUID:             env.Get("uuid").String(),
		InternalID:       env.Get("internalId").String(),
		IssuerName:       env.Get("issuerName").String(),
		IssuerID:         env.Get("issuerId").String(),
		ReceiverID:       env.Get("receiverId").String(),
		TypeName:         env.Get("typeName").String(),
		TypeVersionName:  env.Get("typeVersionName").String(),
		Total:            env.Get("total").String(),
		EnvelopeStatus:   env.Get("status").String(),
		DateTimeReceived: env.Get("dateTimeReceived").String(),
	}

	inner := env
	switch nested := env.Get("document"); nested.Type {
	case gjson.String:
		if gjson.Valid(nested.Str) && gjson.Parse(nested.Str).IsObject() {
			inner = gjson.Parse(nested.Str)
		} else {
			doc.NestedInvalid = true
		}
	case gjson.JSON:
		if nested.IsObject() {
			inner = nested
		}
	}

	doc.Text = inner.Raw
	doc.Issuer = parseParty(inner.Get("issuer"))
	doc.Receiver = parseParty(inner.Get("receiver"))
	doc.ProformaInvoiceNumber = scalar(inner.Get("proformaInvoiceNumber"))
	doc.PurchaseOrderReference = scalar(inner.Get("purchaseOrderReference"))
	doc.SalesOrderReference = scalar(inner.Get("salesOrderReference"))
	doc.DocumentStatus = scalar(inner.Get("status"))

	lines := inner.Get("invoiceLines")
	if lines.IsArray() {
		for _, line := range lines.Array() {
			var desc string
			if line.IsObject() {
				desc = scalar(line.Get("description"))
			}
			doc.InvoiceLines = append(doc.InvoiceLines, InvoiceLine{Description: desc})
		}
	}
	return doc, nil
}

// Status is the document status, falling back to the envelope status.
func (d *InvoiceDocument) Status() string {
	if d.DocumentStatus != "" {
		return d.DocumentStatus
	}
	return d.EnvelopeStatus
}

// DocumentType is the display name of the document type.
func (d *InvoiceDocument) DocumentType() string {
	return MapDocumentType(d.TypeName)
}

// ID is the uuid, or the internal id when the uuid is missing.
func (d *InvoiceDocument) ID() string {
	if d.UUID != "" {
		return d.UUID
	}
	return d.InternalID
}

func parseParty(r gjson.Result) Party {
	if !r.IsObject() {
		return Party{}
	}
	p := Party{
		ID:   scalar(r.Get("id")),
		Name: scalar(r.Get("name")),
	}
	if addr := r.Get("address"); addr.IsObject() {
		p.Address = Address{
			Landmark:              scalar(addr.Get("landmark")),
			AdditionalInformation: scalar(addr.Get("additionalInformation")),
			BuildingNumber:        scalar(addr.Get("buildingNumber")),
			PostalCode:            scalar(addr.Get("postalCode")),
		}
	}
	return p
}

// scalar renders strings and numbers; objects, arrays, null and false read
// as absent.
func scalar(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	case gjson.True:
		return "True"
	default:
		return ""
	}
}
