// ABOUTME: Synchronized entity records: typed promoted fields plus the untouched raw payload
// ABOUTME: Only fields the store queries on are decoded; everything else stays opaque

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entity kinds, also used as sync log operation prefixes and metric labels.
const (
	KindClient       = "client"
	KindSale         = "sale"
	KindAppointment  = "appointment"
	KindBookableItem = "bookable_item"
)

// upstreamTimeLayouts are the datetime shapes the upstream API is known to emit.
var upstreamTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	DateLayout,
}

// FlexibleID accepts both numeric and string identifiers and keeps them as an opaque string
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// UpstreamTime parses the upstream datetime formats. Zone-less values are read as UTC.
type UpstreamTime struct {
	time.Time
}

func (u *UpstreamTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		u.Time = time.Time{}
		return nil
	}
	for _, layout := range upstreamTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			u.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized datetime %q", s)
}

// Client is a synchronized client profile
type Client struct {
	ID           string          `json:"id"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Email        string          `json:"email"`
	MobilePhone  string          `json:"mobile_phone"`
	Status       string          `json:"status"`
	Active       bool            `json:"active"`
	Raw          json.RawMessage `json:"raw"`
	LastSyncedAt time.Time       `json:"last_synced_at"`
}

// Sale is a synchronized sale
type Sale struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	SaleDateTime time.Time       `json:"sale_datetime"`
	LocationID   string          `json:"location_id"`
	TotalAmount  float64         `json:"total_amount"`
	Raw          json.RawMessage `json:"raw"`
	LastSyncedAt time.Time       `json:"last_synced_at"`
}

// Appointment is a synchronized staff appointment
type Appointment struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	StaffID       string          `json:"staff_id"`
	LocationID    string          `json:"location_id"`
	SessionTypeID string          `json:"session_type_id"`
	Status        string          `json:"status"`
	StartDateTime time.Time       `json:"start_datetime"`
	EndDateTime   time.Time       `json:"end_datetime"`
	Raw           json.RawMessage `json:"raw"`
	LastSyncedAt  time.Time       `json:"last_synced_at"`
}

// BookableItem is a synchronized availability slot
type BookableItem struct {
	ID            string          `json:"id"`
	StaffID       string          `json:"staff_id"`
	LocationID    string          `json:"location_id"`
	SessionTypeID string          `json:"session_type_id"`
	StartDateTime time.Time       `json:"start_datetime"`
	EndDateTime   time.Time       `json:"end_datetime"`
	Raw           json.RawMessage `json:"raw"`
	LastSyncedAt  time.Time       `json:"last_synced_at"`
}

type idRef struct {
	ID FlexibleID `json:"Id"`
}

// ParseClient decodes the promoted client fields and keeps the payload verbatim
func ParseClient(raw json.RawMessage, syncedAt time.Time) (*Client, error) {
	var wire struct {
		ID          FlexibleID `json:"Id"`
		FirstName   string     `json:"FirstName"`
		LastName    string     `json:"LastName"`
		Email       string     `json:"Email"`
		MobilePhone string     `json:"MobilePhone"`
		Status      string     `json:"Status"`
		Active      bool       `json:"Active"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode client: %w", err)
	}
	if wire.ID == "" {
		return nil, &ValidationError{Field: "client.Id", Message: "missing"}
	}
	return &Client{
		ID:           string(wire.ID),
		FirstName:    wire.FirstName,
		LastName:     wire.LastName,
		Email:        wire.Email,
		MobilePhone:  wire.MobilePhone,
		Status:       wire.Status,
		Active:       wire.Active,
		Raw:          cloneRaw(raw),
		LastSyncedAt: syncedAt.UTC(),
	}, nil
}

// ParseSale decodes the promoted sale fields and keeps the payload verbatim
func ParseSale(raw json.RawMessage, syncedAt time.Time) (*Sale, error) {
	var wire struct {
		ID           FlexibleID   `json:"Id"`
		ClientID     FlexibleID   `json:"ClientId"`
		SaleDateTime UpstreamTime `json:"SaleDateTime"`
		LocationID   FlexibleID   `json:"LocationId"`
		Payments     []struct {
			Amount float64 `json:"Amount"`
		} `json:"Payments"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode sale: %w", err)
	}
	if wire.ID == "" {
		return nil, &ValidationError{Field: "sale.Id", Message: "missing"}
	}

	var total float64
	for _, p := range wire.Payments {
		total += p.Amount
	}

	return &Sale{
		ID:           string(wire.ID),
		ClientID:     string(wire.ClientID),
		SaleDateTime: wire.SaleDateTime.Time,
		LocationID:   string(wire.LocationID),
		TotalAmount:  total,
		Raw:          cloneRaw(raw),
		LastSyncedAt: syncedAt.UTC(),
	}, nil
}

// ParseAppointment decodes the promoted appointment fields and keeps the payload verbatim
func ParseAppointment(raw json.RawMessage, syncedAt time.Time) (*Appointment, error) {
	var wire struct {
		ID            FlexibleID   `json:"Id"`
		ClientID      FlexibleID   `json:"ClientId"`
		StaffID       FlexibleID   `json:"StaffId"`
		LocationID    FlexibleID   `json:"LocationId"`
		SessionTypeID FlexibleID   `json:"SessionTypeId"`
		Status        string       `json:"Status"`
		StartDateTime UpstreamTime `json:"StartDateTime"`
		EndDateTime   UpstreamTime `json:"EndDateTime"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode appointment: %w", err)
	}
	if wire.ID == "" {
		return nil, &ValidationError{Field: "appointment.Id", Message: "missing"}
	}
	return &Appointment{
		ID:            string(wire.ID),
		ClientID:      string(wire.ClientID),
		StaffID:       string(wire.StaffID),
		LocationID:    string(wire.LocationID),
		SessionTypeID: string(wire.SessionTypeID),
		Status:        wire.Status,
		StartDateTime: wire.StartDateTime.Time,
		EndDateTime:   wire.EndDateTime.Time,
		Raw:           cloneRaw(raw),
		LastSyncedAt:  syncedAt.UTC(),
	}, nil
}

// ParseBookableItem decodes an availability slot. Slots without an upstream id get a
// deterministic id built from staff, session type, location and start time.
func ParseBookableItem(raw json.RawMessage, syncedAt time.Time) (*BookableItem, error) {
	var wire struct {
		ID            FlexibleID   `json:"Id"`
		Staff         idRef        `json:"Staff"`
		Location      idRef        `json:"Location"`
		SessionType   idRef        `json:"SessionType"`
		StartDateTime UpstreamTime `json:"StartDateTime"`
		EndDateTime   UpstreamTime `json:"EndDateTime"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode bookable item: %w", err)
	}

	id := string(wire.ID)
	if id == "" {
		if wire.StartDateTime.IsZero() {
			return nil, &ValidationError{Field: "bookable_item.Id", Message: "missing id and start time"}
		}
		id = strings.Join([]string{
			string(wire.Staff.ID),
			string(wire.SessionType.ID),
			string(wire.Location.ID),
			strconv.FormatInt(wire.StartDateTime.Unix(), 10),
		}, "-")
	}

	return &BookableItem{
		ID:            id,
		StaffID:       string(wire.Staff.ID),
		LocationID:    string(wire.Location.ID),
		SessionTypeID: string(wire.SessionType.ID),
		StartDateTime: wire.StartDateTime.Time,
		EndDateTime:   wire.EndDateTime.Time,
		Raw:           cloneRaw(raw),
		LastSyncedAt:  syncedAt.UTC(),
	}, nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
