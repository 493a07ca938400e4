package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// DeviceRecord is a device's registry entry.
type DeviceRecord struct {
	ThingName  string            `json:"thingName"`
	ARN        string            `json:"thingArn"`
	ID         string            `json:"thingId"`
	Type       string            `json:"thingType,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Version    int64             `json:"version"`
	// ShadowAvailable is set when a classic shadow exists, which usually
	// means the device has connected at least once.
	ShadowAvailable bool `json:"shadowAvailable"`
}

// ShadowFactory resolves a data-plane client for shadow reads.
type ShadowFactory func(ctx context.Context) (ShadowAPI, error)

// Devices looks up things in the IoT registry.
type Devices struct {
	api    IoTAPI
	shadow ShadowFactory
}

// NewDevices returns a Devices using the session's IoT client. The shadow
// probe resolves the account's ATS data endpoint on first use.
func NewDevices(sess *cloud.Session) *Devices {
	api := iot.NewFromConfig(sess.Config)
	return &Devices{api: api, shadow: dataPlane(sess.Config, api)}
}

// NewDevicesWithAPI returns a Devices over explicit clients. A nil shadow
// factory disables the shadow probe.
func NewDevicesWithAPI(api IoTAPI, shadow ShadowFactory) *Devices {
	return &Devices{api: api, shadow: shadow}
}

func dataPlane(cfg aws.Config, api IoTAPI) ShadowFactory {
	var client ShadowAPI
	return func(ctx context.Context) (ShadowAPI, error) {
		if client != nil {
			return client, nil
		}
		out, err := api.DescribeEndpoint(ctx, &iot.DescribeEndpointInput{EndpointType: aws.String("iot:Data-ATS")})
		if err != nil {
			return nil, fmt.Errorf("DescribeEndpoint: %w", err)
		}
		endpoint := "https://" + aws.ToString(out.EndpointAddress)
		client = iotdataplane.NewFromConfig(cfg, func(o *iotdataplane.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		return client, nil
	}
}

// Check returns the registry record for thingName. An unregistered thing is
// a not-found failure, distinct from a failed lookup.
func (d *Devices) Check(ctx context.Context, thingName string) result.Result[*DeviceRecord] {
	const op = "fleet.Check"

	thingName = strings.TrimSpace(thingName)
	if thingName == "" {
		return result.Failure[*DeviceRecord](result.KindInvalidInput, op, errors.New("thing name is empty"))
	}

	out, err := d.api.DescribeThing(ctx, &iot.DescribeThingInput{ThingName: aws.String(thingName)})
	if err != nil {
		if cloud.Classify(err) == result.KindNotFound {
			log.Warn().Str("thing", thingName).Msg("Thing is not registered in IoT Core")
			return result.Failure[*DeviceRecord](result.KindNotFound, op, fmt.Errorf("thing %s: %w", thingName, err))
		}
		return cloud.Fail[*DeviceRecord](op, err)
	}

	rec := &DeviceRecord{
		ThingName:  aws.ToString(out.ThingName),
		ARN:        aws.ToString(out.ThingArn),
		ID:         aws.ToString(out.ThingId),
		Type:       aws.ToString(out.ThingTypeName),
		Attributes: out.Attributes,
		Version:    out.Version,
	}
	if rec.ThingName == "" {
		rec.ThingName = thingName
	}
	rec.ShadowAvailable = d.probeShadow(ctx, thingName)

	log.Info().
		Str("thing", rec.ThingName).
		Str("arn", rec.ARN).
		Int("attributes", len(rec.Attributes)).
		Bool("shadow", rec.ShadowAvailable).
		Msg("Thing found")

	return result.Success(rec)
}

func (d *Devices) probeShadow(ctx context.Context, thingName string) bool {
	if d.shadow == nil {
		return false
	}
	client, err := d.shadow(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("IoT data endpoint unavailable")
		return false
	}
	if _, err := client.GetThingShadow(ctx, &iotdataplane.GetThingShadowInput{ThingName: aws.String(thingName)}); err != nil {
		log.Debug().Err(err).Str("thing", thingName).Msg("No shadow found, device may be offline")
		return false
	}
	return true
}

// thingNameFromARN returns the last path segment of a thing ARN.
func thingNameFromARN(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
