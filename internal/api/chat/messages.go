package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/report-router/internal/domain"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

const (
	textWelcome          = "Welcome!"
	textReporterWelcome  = "\nPress the button below to send a bug report."
	textStaffWelcome     = "\n[⚒️Staff⚒️]\nYou are in the support chat. Available commands:\n/reports - show unanswered reports\n/reply [number] [text] - answer a specific report\nYou can also answer a report by replying to its message."
	textSupportOnly      = "This command is only available in the support chat."
	textPrompt           = "Describe the problem you found ✏️:"
	textNoOpenReports    = "No reports! Keep up the good work."
	textDigestHeader     = "📋 Unanswered reports:\n\n"
	textDigestFooter     = "\nTo answer a report use /reply [number] [text]"
	textReplyUsage       = "/reply [report_number] [response]"
	textReplyMissingText = "Add the response text after the report number."
	textTryLater         = "The bot is temporarily unavailable. Please try again later."
)

func welcomeText(staff bool, operator, supportLink string) string {
	var b strings.Builder
	b.WriteString(textWelcome)
	if staff {
		b.WriteString(textStaffWelcome)
		if supportLink != "" {
			b.WriteString("\nSupport chat: " + supportLink)
		}
		return b.String()
	}
	b.WriteString(textReporterWelcome)
	if operator != "" {
		b.WriteString("\nOperator: " + operator)
	}
	return b.String()
}

func acceptedText(ticketID int64) string {
	return fmt.Sprintf("✔️ Accepted\nThank you for your report! We will look into it as soon as possible. Your report ID: #%d", ticketID)
}

func digestText(tickets []domain.Ticket) string {
	if len(tickets) == 0 {
		return textNoOpenReports
	}
	var b strings.Builder
	b.WriteString(textDigestHeader)
	for _, t := range tickets {
		fmt.Fprintf(&b, "🔹 #%d from %s\n📄 Message: %s\n\n", t.ID, t.ReporterName, t.Body)
	}
	b.WriteString(textDigestFooter)
	return b.String()
}

func notifyReporterText(ticketID int64, response string) string {
	return fmt.Sprintf("Response to your report #%d:\n%s", ticketID, response)
}

func confirmText(ticketID int64) string {
	return fmt.Sprintf("Response to report #%d sent.", ticketID)
}

func deliveryWarningText(ticketID int64) string {
	return fmt.Sprintf("⚠️ Report #%d is closed but the reporter could not be notified.", ticketID)
}

func fileFailedText(err error) string {
	return "Could not send your report: " + describe(err)
}

func replyFailedText(err error) string {
	return "Error while processing the response: " + describe(err)
}

// describe turns a domain error into a short human-readable reason.
func describe(err error) string {
	var domainErr *apperrors.DomainError
	switch {
	case errors.Is(err, apperrors.ErrAlreadyClosed):
		return "the report has already been handled by support."
	case errors.Is(err, apperrors.ErrNotFound):
		return "no such report."
	case errors.Is(err, apperrors.ErrNoMatchingTicket):
		return "no open report matches this message."
	case errors.Is(err, apperrors.ErrDelivery):
		return "the support chat is unreachable, please try again later."
	case errors.Is(err, apperrors.ErrStorage):
		return "the report could not be saved, please try again later."
	case errors.As(err, &domainErr):
		return domainErr.Message
	default:
		return "internal error."
	}
}
