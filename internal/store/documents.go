// Package store содержит общие части SQL-хранилищ заявок.
package store

import (
	"encoding/json"
	"fmt"

	"driver_bot/internal/driver"
)

// Documents содержит JSON документов заявки для хранения в колонках.
type Documents struct {
	Passport     string
	License      string
	TechPassport string
	Media        string
}

// EncodeDocuments сериализует документы заявки.
func EncodeDocuments(d driver.Driver) (Documents, error) {
	var docs Documents
	var err error
	if docs.Passport, err = encode(d.Passport); err != nil {
		return Documents{}, fmt.Errorf("encode passport: %w", err)
	}
	if docs.License, err = encode(d.License); err != nil {
		return Documents{}, fmt.Errorf("encode license: %w", err)
	}
	if docs.TechPassport, err = encode(d.TechPassport); err != nil {
		return Documents{}, fmt.Errorf("encode tech passport: %w", err)
	}
	media := d.Media
	if media == nil {
		media = map[string]string{}
	}
	if docs.Media, err = encode(media); err != nil {
		return Documents{}, fmt.Errorf("encode media: %w", err)
	}
	return docs, nil
}

// DecodeDocuments восстанавливает документы в d.
func DecodeDocuments(d *driver.Driver, passport, license, techPassport, media []byte) error {
	if err := json.Unmarshal(passport, &d.Passport); err != nil {
		return fmt.Errorf("decode passport: %w", err)
	}
	if err := json.Unmarshal(license, &d.License); err != nil {
		return fmt.Errorf("decode license: %w", err)
	}
	if err := json.Unmarshal(techPassport, &d.TechPassport); err != nil {
		return fmt.Errorf("decode tech passport: %w", err)
	}
	d.Media = nil
	if len(media) > 0 {
		var decoded map[string]string
		if err := json.Unmarshal(media, &decoded); err != nil {
			return fmt.Errorf("decode media: %w", err)
		}
		if len(decoded) > 0 {
			d.Media = decoded
		}
	}
	return nil
}

func encode(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
