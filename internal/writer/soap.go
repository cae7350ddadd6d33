package writer

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/activity"
	"github.com/marminbh/journey-logger-svc/internal/config"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	addressingNS   = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	partnerAPINS   = "http://exacttarget.com/wsdl/partnerAPI"
	fuelOAuthNS    = "http://exacttarget.com"
	xsiNS          = "http://www.w3.org/2001/XMLSchema-instance"
)

// SOAPWriter upserts rows through the SOAP Update call with SaveAction
// UpdateAdd. ContactKey, Label and EventDate form the match key.
type SOAPWriter struct {
	tokens    TokenSource
	opts      Options
	transport *transport
	logger    *zap.Logger
}

// NewSOAPWriter creates a writer that upserts rows through the SOAP Update call
func NewSOAPWriter(tokens TokenSource, opts Options, logger *zap.Logger) *SOAPWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SOAPWriter{
		tokens:    tokens,
		opts:      opts,
		transport: newTransport(opts.HTTPClient, opts.MaxResponseBody, logger),
		logger:    logger,
	}
}

func (w *SOAPWriter) Name() string { return config.StrategySOAP }

func (w *SOAPWriter) Check(ctx context.Context) error {
	return checkToken(ctx, w.tokens)
}

type soapEnvelope struct {
	XMLName  xml.Name   `xml:"s:Envelope"`
	XmlnsS   string     `xml:"xmlns:s,attr"`
	XmlnsA   string     `xml:"xmlns:a,attr"`
	XmlnsXSI string     `xml:"xmlns:xsi,attr"`
	Header   soapHeader `xml:"s:Header"`
	Body     soapBody   `xml:"s:Body"`
}

type soapHeader struct {
	Action    mustUnderstand `xml:"a:Action"`
	To        mustUnderstand `xml:"a:To"`
	FuelOAuth fuelOAuth      `xml:"fueloauth"`
}

type mustUnderstand struct {
	MustUnderstand string `xml:"s:mustUnderstand,attr"`
	Value          string `xml:",chardata"`
}

type fuelOAuth struct {
	Xmlns string `xml:"xmlns,attr"`
	Token string `xml:",chardata"`
}

type soapBody struct {
	Update updateRequest `xml:"UpdateRequest"`
}

type updateRequest struct {
	Xmlns   string              `xml:"xmlns,attr"`
	Options updateOptions       `xml:"Options"`
	Objects dataExtensionObject `xml:"Objects"`
}

type updateOptions struct {
	SaveOptions []saveOption `xml:"SaveOptions>SaveOption"`
}

type saveOption struct {
	PropertyName string `xml:"PropertyName"`
	SaveAction   string `xml:"SaveAction"`
}

type dataExtensionObject struct {
	Type        string     `xml:"xsi:type,attr"`
	CustomerKey string     `xml:"CustomerKey"`
	Properties  []apiField `xml:"Properties>Property"`
	Keys        []apiField `xml:"Keys>Key"`
}

type apiField struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

// updateResponseEnvelope matches elements by local name so the response
// decodes regardless of the prefixes the server picks
type updateResponseEnvelope struct {
	Body struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		Update *UpdateResponse `xml:"UpdateResponse"`
	} `xml:"Body"`
}

// UpdateResponse is the decoded SOAP UpdateResponse echoed to the platform
type UpdateResponse struct {
	OverallStatus string         `xml:"OverallStatus" json:"OverallStatus"`
	RequestID     string         `xml:"RequestID" json:"RequestID"`
	Results       []UpdateResult `xml:"Results" json:"Results"`
}

// UpdateResult is the per-object outcome inside an UpdateResponse
type UpdateResult struct {
	StatusCode    string `xml:"StatusCode" json:"StatusCode"`
	StatusMessage string `xml:"StatusMessage" json:"StatusMessage"`
	OrdinalID     int    `xml:"OrdinalID" json:"OrdinalID"`
	ErrorCode     int    `xml:"ErrorCode,omitempty" json:"ErrorCode,omitempty"`
}

func (w *SOAPWriter) envelope(endpoint, token string, record activity.ExecutionRecord) soapEnvelope {
	return soapEnvelope{
		XmlnsS:   soapEnvelopeNS,
		XmlnsA:   addressingNS,
		XmlnsXSI: xsiNS,
		Header: soapHeader{
			Action:    mustUnderstand{MustUnderstand: "1", Value: "Update"},
			To:        mustUnderstand{MustUnderstand: "1", Value: endpoint},
			FuelOAuth: fuelOAuth{Xmlns: fuelOAuthNS, Token: token},
		},
		Body: soapBody{
			Update: updateRequest{
				Xmlns: partnerAPINS,
				Options: updateOptions{
					SaveOptions: []saveOption{{PropertyName: "DataExtensionObject", SaveAction: "UpdateAdd"}},
				},
				Objects: dataExtensionObject{
					Type:        "DataExtensionObject",
					CustomerKey: w.opts.DataExtensionKey,
					Keys: []apiField{
						{Name: ColumnContactKey, Value: record.ContactKey},
						{Name: ColumnLabel, Value: record.Label},
						{Name: ColumnEventDate, Value: record.FormattedEventDate()},
					},
					Properties: []apiField{
						{Name: ColumnJourneyDefinitionID, Value: record.JourneyDefinitionID},
						{Name: ColumnJourneyVersion, Value: record.JourneyVersion},
						{Name: ColumnJourneyName, Value: record.JourneyName},
					},
				},
			},
		},
	}
}

func (w *SOAPWriter) Write(ctx context.Context, record activity.ExecutionRecord) (*Result, error) {
	token, err := w.tokens.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token: %w", err)
	}

	base := w.opts.BaseURL
	if token.SOAPInstanceURL != "" {
		base = token.SOAPInstanceURL
	}
	endpoint := joinURL(base, "Service.asmx")

	body, err := xml.Marshal(w.envelope(endpoint, token.AccessToken, record))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SOAP envelope: %w", err)
	}
	body = append([]byte(xml.Header), body...)

	resp, err := w.transport.post(ctx, endpoint, body, map[string]string{
		"Content-Type": "text/xml; charset=utf-8",
		"SOAPAction":   "Update",
	})
	if err != nil {
		return nil, err
	}

	var env updateResponseEnvelope
	decodeErr := xml.Unmarshal(resp.Body, &env)

	if decodeErr == nil && env.Body.Fault != nil {
		if strings.Contains(strings.ToLower(env.Body.Fault.String), "token") {
			w.tokens.Invalidate(token.AccessToken)
		}
		return nil, &RemoteError{
			Strategy:   w.Name(),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(env.Body.Fault.Code + " " + env.Body.Fault.String),
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		w.tokens.Invalidate(token.AccessToken)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &RemoteError{Strategy: w.Name(), StatusCode: resp.StatusCode, Message: resp.Summary()}
	}
	if decodeErr != nil {
		return nil, &RemoteError{Strategy: w.Name(), Message: "malformed UpdateResponse: " + decodeErr.Error()}
	}
	if env.Body.Update == nil {
		return nil, &RemoteError{Strategy: w.Name(), Message: "response carries no UpdateResponse"}
	}

	update := env.Body.Update
	if update.OverallStatus != "OK" {
		msg := update.OverallStatus
		if len(update.Results) > 0 {
			r := update.Results[0]
			msg = fmt.Sprintf("%s: %s (error code %d)", update.OverallStatus, r.StatusMessage, r.ErrorCode)
		}
		return nil, &RemoteError{Strategy: w.Name(), StatusCode: resp.StatusCode, Message: msg}
	}

	w.logger.Debug("Row upserted",
		zap.String("contact_key", record.ContactKey),
		zap.String("label", record.Label),
		zap.String("request_id", update.RequestID),
		zap.Duration("latency", resp.Latency),
	)

	return &Result{
		Label:      record.Label,
		Data:       update,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		Summary:    resp.Summary(),
	}, nil
}
