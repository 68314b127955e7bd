package mailer

import (
	"fmt"
	"html"
	"strings"
)

// WelcomeMessage builds the sign-in link email for a newly invited member.
func WelcomeMessage(displayName, outfitterName, linkURL string) (subject, htmlBody string) {
	subject = "Welcome to " + outfitterName
	htmlBody = fmt.Sprintf(
		"<h1>Welcome to %s</h1>"+
			"<p>Hello %s,</p>"+
			"<p>Click the link below to sign in and complete your account setup.</p>"+
			"<p><a href=%q>Complete your setup</a></p>",
		html.EscapeString(outfitterName),
		html.EscapeString(displayName),
		linkURL,
	)
	return subject, htmlBody
}

// BookingMessage builds the notification email sent to each participant of a
// new booking.
func BookingMessage(huntType, location, date, startTime, notes string) (subject, htmlBody string) {
	subject = fmt.Sprintf("New booking: %s on %s", huntType, date)

	var b strings.Builder
	fmt.Fprintf(&b, "<h1>You have a new booking</h1>")
	fmt.Fprintf(&b, "<p><strong>Type:</strong> %s</p>", html.EscapeString(huntType))
	fmt.Fprintf(&b, "<p><strong>Location:</strong> %s</p>", html.EscapeString(location))
	fmt.Fprintf(&b, "<p><strong>Date:</strong> %s at %s</p>", html.EscapeString(date), html.EscapeString(startTime))
	if notes != "" {
		fmt.Fprintf(&b, "<p><strong>Notes:</strong> %s</p>", html.EscapeString(notes))
	}

	return subject, b.String()
}

// CancellationMessage builds the notification email sent when a booking is
// cancelled.
func CancellationMessage(huntType, location, date string) (subject, htmlBody string) {
	subject = fmt.Sprintf("Booking cancelled: %s on %s", huntType, date)
	htmlBody = fmt.Sprintf(
		"<h1>Booking cancelled</h1>"+
			"<p>The %s at %s on %s has been cancelled.</p>",
		html.EscapeString(huntType),
		html.EscapeString(location),
		html.EscapeString(date),
	)
	return subject, htmlBody
}
