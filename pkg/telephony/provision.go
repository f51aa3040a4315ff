package telephony

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Provisioner buys inbound numbers and points their voice webhook at this
// service.
type Provisioner struct {
	client      *twilio.RestClient
	webhookBase string
}

// NewProvisioner builds a Provisioner. webhookBase is the public base URL the
// voice webhook is served under, e.g. "https://example.com".
func NewProvisioner(accountSID, authToken, webhookBase string) *Provisioner {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Provisioner{client: client, webhookBase: webhookBase}
}

// BuyNumber purchases the first available local number in the given country
// and wires its voice webhook to the incoming-call endpoint. Returns the
// purchased number in E.164 form.
func (p *Provisioner) BuyNumber(country string) (string, error) {
	listParams := &twilioApi.ListAvailablePhoneNumberLocalParams{}
	listParams.SetLimit(1)

	available, err := p.client.Api.ListAvailablePhoneNumberLocal(country, listParams)
	if err != nil {
		return "", fmt.Errorf("list available numbers: %w", err)
	}
	if len(available) == 0 || available[0].PhoneNumber == nil {
		return "", fmt.Errorf("no numbers available in %s", country)
	}

	createParams := &twilioApi.CreateIncomingPhoneNumberParams{}
	createParams.SetPhoneNumber(*available[0].PhoneNumber)
	createParams.SetVoiceUrl(p.webhookBase + "/v1/voice/incoming")
	createParams.SetVoiceMethod("POST")

	bought, err := p.client.Api.CreateIncomingPhoneNumber(createParams)
	if err != nil {
		return "", fmt.Errorf("purchase number: %w", err)
	}
	if bought.PhoneNumber == nil {
		return "", fmt.Errorf("purchase succeeded but no number returned")
	}
	return *bought.PhoneNumber, nil
}
