// Package ticket renders a printable PDF e-ticket for a booking.
package ticket

import (
	"bytes"
	"fmt"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/phpdave11/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

const maxListedPassengers = 12

// Render builds the e-ticket. The QR code encodes verifyURL with the PNR
// appended, or just the PNR when verifyURL is empty.
func Render(b *domain.Booking, class *domain.TrainClass, verifyURL string) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("render ticket: nil booking")
	}

	qrPayload := b.PNR
	if verifyURL != "" {
		qrPayload = verifyURL + b.PNR
	}
	qrBytes, err := qrcode.Encode(qrPayload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+b.PNR, false)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "RAIL E-TICKET")
	pdf.Ln(16)

	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 52, "F")

	pdf.SetXY(20, yStart+6)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "PNR "+b.PNR)
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Status: %s", b.Status),
		fmt.Sprintf("Train: %d", b.TrainID),
		fmt.Sprintf("Class: %s", classLabel(b.ClassID, class)),
		fmt.Sprintf("Journey date: %s", domain.FormatDate(b.JourneyDate)),
		fmt.Sprintf("Total fare: %s", formatFare(b.TotalFareCents)),
	}
	for _, s := range lines {
		pdf.SetX(20)
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qrBytes))
	pdf.ImageOptions("qr", 145, yStart, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(yStart + 60)
	sectionTitle(pdf, "PASSENGERS")
	pdf.SetFont("Helvetica", "", 12)
	for i, p := range b.Passengers {
		if i >= maxListedPassengers {
			pdf.Cell(0, 7, fmt.Sprintf("... and %d more", len(b.Passengers)-maxListedPassengers))
			pdf.Ln(7)
			break
		}
		seat := p.SeatLabel
		if seat == "" {
			seat = "not assigned"
		}
		pdf.Cell(0, 7, fmt.Sprintf("%d. %s | %d | %s | seat %s", i+1, p.Name, p.Age, p.Gender, seat))
		pdf.Ln(7)
	}

	if b.Status == domain.BookingStatusCancelled {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 16)
		pdf.SetTextColor(200, 0, 0)
		pdf.Cell(0, 10, "CANCELLED - NOT VALID FOR TRAVEL")
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 280, 195, 280)
	pdf.SetY(283)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, "Carry a valid photo ID. The QR code verifies this booking.", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(2)
}

func classLabel(classID string, class *domain.TrainClass) string {
	if class == nil || class.Name == "" {
		return classID
	}
	return fmt.Sprintf("%s (%s)", class.Name, classID)
}

func formatFare(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
