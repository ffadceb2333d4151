package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	auth "github.com/microsoft/kiota-authentication-azure-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	graphusers "github.com/microsoftgraph/msgraph-sdk-go/users"
	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/domain"
)

// GraphSender sends mail as the signed-in mailbox via Microsoft Graph.
type GraphSender struct {
	client *msgraphsdk.GraphServiceClient
}

// managerTokenCredential adapts a TokenManager to the azcore credential
// interface the Graph SDK authenticates with.
type managerTokenCredential struct {
	tokens domain.TokenManager
}

func (c *managerTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		var persistErr *domain.TokenPersistenceError
		if !errors.As(err, &persistErr) || token == "" {
			return azcore.AccessToken{}, err
		}
		// Rotation persistence failed but the token is valid for this run.
	}

	return azcore.AccessToken{
		Token:     token,
		ExpiresOn: time.Now().Add(time.Hour),
	}, nil
}

func NewGraphSender(tokens domain.TokenManager) (*GraphSender, error) {
	credential := &managerTokenCredential{tokens: tokens}

	authProvider, err := auth.NewAzureIdentityAuthenticationProvider(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	adapter, err := msgraphsdk.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph request adapter: %w", err)
	}

	return &GraphSender{client: msgraphsdk.NewGraphServiceClient(adapter)}, nil
}

// Send delivers one message through POST /me/sendMail.
func (s *GraphSender) Send(ctx context.Context, email domain.OutgoingEmail) error {
	if email.To == "" {
		return &domain.EmailSendError{Recipient: email.To, Err: fmt.Errorf("recipient address is empty")}
	}

	message := graphmodels.NewMessage()
	message.SetSubject(&email.Subject)

	body := graphmodels.NewItemBody()
	contentType := graphmodels.HTML_BODYTYPE
	body.SetContentType(&contentType)
	content := email.HTMLBody
	body.SetContent(&content)
	message.SetBody(body)

	address := graphmodels.NewEmailAddress()
	to := email.To
	address.SetAddress(&to)
	recipient := graphmodels.NewRecipient()
	recipient.SetEmailAddress(address)
	message.SetToRecipients([]graphmodels.Recipientable{recipient})

	importance := graphmodels.NORMAL_IMPORTANCE
	if email.Importance == domain.EmailImportanceHigh {
		importance = graphmodels.HIGH_IMPORTANCE
	}
	message.SetImportance(&importance)

	requestBody := graphusers.NewItemSendMailPostRequestBody()
	requestBody.SetMessage(message)
	saveToSentItems := true
	requestBody.SetSaveToSentItems(&saveToSentItems)

	if err := s.client.Me().SendMail().Post(ctx, requestBody, nil); err != nil {
		return &domain.EmailSendError{Recipient: email.To, Err: graphError(err)}
	}

	log.Info().
		Str("to", email.To).
		Str("subject", email.Subject).
		Msg("Email sent via Microsoft Graph")

	return nil
}

// graphError unwraps the Graph SDK's OData error into something readable.
func graphError(err error) error {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		if mainErr := odataErr.GetErrorEscaped(); mainErr != nil {
			code := ""
			if mainErr.GetCode() != nil {
				code = *mainErr.GetCode()
			}
			msg := ""
			if mainErr.GetMessage() != nil {
				msg = *mainErr.GetMessage()
			}
			return fmt.Errorf("graph API error %s: %s", code, msg)
		}
	}
	return err
}
