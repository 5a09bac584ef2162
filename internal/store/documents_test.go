package store

import (
	"testing"

	"driver_bot/internal/driver"
)

func TestDocumentsKeepFieldNames(t *testing.T) {
	docs, err := EncodeDocuments(driver.Driver{
		Passport: driver.Passport{FullName: "Marcus Aurelius", SerialNumber: "AB123456", BirthDate: "01.01.1990"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if docs.Passport != `{"fullName":"Marcus Aurelius","serialNumber":"AB123456","birthDate":"01.01.1990"}` {
		t.Fatalf("unexpected passport json %s", docs.Passport)
	}
	if docs.Media != `{}` {
		t.Fatalf("empty media must encode as an object, got %s", docs.Media)
	}

	var d driver.Driver
	if err := DecodeDocuments(&d, []byte(docs.Passport), []byte(docs.License), []byte(docs.TechPassport), []byte(docs.Media)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Passport.FullName != "Marcus Aurelius" || d.Media != nil {
		t.Fatalf("unexpected decoded driver %+v", d)
	}
}

func TestDecodeDocumentsRejectsGarbage(t *testing.T) {
	var d driver.Driver
	if err := DecodeDocuments(&d, []byte("{"), []byte("{}"), []byte("{}"), nil); err == nil {
		t.Fatalf("expected decode error")
	}
}
