// Package notifier delivers lifecycle notifications to citizens and workers
// over Expo push and email. Every delivery is best effort: failures are
// logged and never bubble into the lifecycle operation that triggered them.
package notifier

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
	templates "github.com/civicgrid/civic-issue-api/templates/html"
)

// Pusher sends a push notification to device tokens.
type Pusher interface {
	Send(tokens []string, title, body string, data map[string]interface{}) error
}

// Notifier resolves recipients from the user store and fans notifications
// out to their devices and inboxes.
type Notifier struct {
	UDB         databases.UserDatabase
	Push        Pusher
	SendgridKey string
	FromEmail   string
}

// New creates a Notifier using the Expo push service.
func New(udb databases.UserDatabase, sendgridKey string) *Notifier {
	return &Notifier{
		UDB:         udb,
		Push:        NewExpoPusher(),
		SendgridKey: sendgridKey,
		FromEmail:   "no-reply@civicgrid.org",
	}
}

// ReportCreated confirms intake to the submitter.
func (n *Notifier) ReportCreated(ctx context.Context, report *models.Report) {
	if report.SubmittedBy == nil {
		return
	}
	n.pushToUser(ctx, *report.SubmittedBy,
		"Report received",
		fmt.Sprintf("Your %s report is in review.", report.Category),
		map[string]interface{}{"reportId": report.ID.Hex(), "status": string(report.Status)},
	)
}

// WorkerAssigned tells the worker a report landed in their queue.
func (n *Notifier) WorkerAssigned(ctx context.Context, report *models.Report) {
	if report.AssignedWorker == nil {
		return
	}
	n.pushToUser(ctx, *report.AssignedWorker,
		"New assignment",
		fmt.Sprintf("A %s report was assigned to you.", report.Category),
		map[string]interface{}{"reportId": report.ID.Hex()},
	)
}

// StatusChanged tells the submitter their report moved, and emails a
// resolution receipt when it reached Resolved.
func (n *Notifier) StatusChanged(ctx context.Context, report *models.Report) {
	if report.SubmittedBy == nil {
		return
	}
	n.pushToUser(ctx, *report.SubmittedBy,
		"Report updated",
		fmt.Sprintf("Your %s report is now %s.", report.Category, report.Status),
		map[string]interface{}{"reportId": report.ID.Hex(), "status": string(report.Status)},
	)

	if report.Status == models.StatusResolved {
		go n.sendResolutionReceipt(*report.SubmittedBy, report)
	}
}

func (n *Notifier) pushToUser(ctx context.Context, userID primitive.ObjectID, title, body string, data map[string]interface{}) {
	user, err := n.UDB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		zap.S().Warnw("notification recipient not found", "userId", userID.Hex(), "error", err)
		return
	}
	if user.PushToken == "" {
		return
	}
	if err := n.Push.Send([]string{user.PushToken}, title, body, data); err != nil {
		zap.S().Errorw("failed to send push notification", "userId", userID.Hex(), "error", err)
	}
}

func (n *Notifier) sendResolutionReceipt(userID primitive.ObjectID, report *models.Report) {
	if n.SendgridKey == "" {
		zap.S().Errorw("SENDGRID_API_KEY not set, cannot send email", "userId", userID.Hex())
		return
	}

	user, err := n.UDB.FindOne(context.Background(), bson.M{"_id": userID})
	if err != nil || user.Email == "" {
		return
	}

	subject := "Your report has been resolved"
	text := fmt.Sprintf(
		"Good news! Your %s report from %s has been resolved.\nThank you for helping keep your city in shape.",
		report.Category, report.CreatedAt.Time().Format("January 2, 2006"),
	)
	message := mail.NewSingleEmail(
		mail.NewEmail("CivicGrid", n.FromEmail),
		subject,
		mail.NewEmail(user.Name, user.Email),
		text,
		templates.RenderGenericEmail(subject, text),
	)

	client := sendgrid.NewSendClient(n.SendgridKey)
	response, err := client.Send(message)
	if err != nil {
		zap.S().Errorw("failed to send resolution email", "email", user.Email, "error", err)
		return
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		zap.S().Infow("resolution email sent", "email", user.Email, "statusCode", response.StatusCode)
	} else {
		zap.S().Warnw("resolution email sent with non-2xx status", "email", user.Email, "statusCode", response.StatusCode, "body", response.Body)
	}
}
