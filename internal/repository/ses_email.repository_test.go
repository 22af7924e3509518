package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/require"
)

type fakeSes struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSes) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func Test_emailRepositoryHandler_SendEmail(t *testing.T) {
	ses := &fakeSes{}
	h := &emailRepositoryHandler{sesClient: ses, fromEmail: "bt@example.com"}

	err := h.SendEmail(context.Background(), []string{"a@example.com", "b@example.com"}, "run done", "<p>ok</p>")
	require.NoError(t, err)
	require.Len(t, ses.inputs, 1)

	in := ses.inputs[0]
	require.Equal(t, "bt@example.com", *in.FromEmailAddress)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, in.Destination.ToAddresses)
	require.Equal(t, "run done", *in.Content.Simple.Subject.Data)
	require.Equal(t, "<p>ok</p>", *in.Content.Simple.Body.Html.Data)

	require.ErrorContains(t, h.SendEmail(context.Background(), nil, "s", "b"), "no recipients")

	ses.err = fmt.Errorf("throttled")
	err = h.SendEmail(context.Background(), []string{"a@example.com"}, "s", "b")
	require.ErrorContains(t, err, "throttled")
}
