package main

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Types for Home Assistant MQTT Discovery
type hassMqttConfigDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

type hassMqttConfig struct {
	AvailabilityTopic string               `json:"availability_topic"`
	ConfigTopic       string               `json:"-"`
	Device            hassMqttConfigDevice `json:"device"`
	DeviceClass       string               `json:"device_class,omitempty"`
	Name              string               `json:"name"`
	Qos               int                  `json:"qos"`
	StateTopic        string               `json:"state_topic"`
	UniqueId          string               `json:"unique_id"`
	Icon              string               `json:"icon,omitempty"`
	UnitOfMeasurement string               `json:"unit_of_measurement,omitempty"`
}

type hassMessage struct {
	Topic   string
	Payload interface{}
}

// hassMessages builds the availability, state and config messages announcing
// each hass-tagged field of status as a sensor.
func hassMessages(cfg tomlConfigHass, status *locationStatus, swversion string) []hassMessage {
	v := reflect.ValueOf(status).Elem()
	typeOfStatus := v.Type()
	device := fmt.Sprintf("%s_%s", cfg.DeviceName, status.Location)

	var messages []hassMessage
	for i := 0; i < v.NumField(); i++ {
		field := typeOfStatus.Field(i)
		fieldName := field.Name
		mqttFieldName := fieldName

		unitOfMeasurement := ""
		deviceClass := ""

		hassTag, ok := field.Tag.Lookup("hass")
		if ok {
			tagParts := strings.Split(hassTag, ",")
			if tagParts[0] == "-" {
				logger.Debugf("Ignoring sending field %s to HomeAssistant", fieldName)
				continue
			}

			mqttFieldName = tagParts[0]

			if len(tagParts) > 1 && tagParts[1] != "-" {
				unitOfMeasurement = tagParts[1]
			}

			if len(tagParts) > 2 && tagParts[2] != "-" {
				deviceClass = tagParts[2]
			}
		}

		value, ok := fieldValue(v.Field(i))
		if !ok {
			continue
		}

		// generate the topic name
		topic := fmt.Sprintf("%s/%s/%s/%s", cfg.DiscoveryPrefix, "sensor", device, mqttFieldName)

		hassConfig := hassMqttConfig{
			AvailabilityTopic: topic + "/availability",
			ConfigTopic:       topic + "/config",
			Device: hassMqttConfigDevice{
				Identifiers:  []string{device},
				Manufacturer: cfg.Manufacturer,
				Model:        cfg.DeviceModel,
				Name:         fmt.Sprintf("%s %s", cfg.DeviceName, status.City),
				SWVersion:    swversion,
			},
			Name:              fieldName,
			Qos:               0,
			StateTopic:        topic + "/state",
			UniqueId:          fmt.Sprintf("%s_%s", device, mqttFieldName),
			DeviceClass:       deviceClass,
			UnitOfMeasurement: unitOfMeasurement,
		}

		configPayload, err := json.Marshal(hassConfig)
		if err != nil {
			logger.Errorf("Error marshalling hassConfig to JSON: %v", err)
			continue
		}

		messages = append(messages,
			hassMessage{Topic: hassConfig.AvailabilityTopic, Payload: "online"},
			hassMessage{Topic: hassConfig.StateTopic, Payload: fmt.Sprintf("%v", value)},
			hassMessage{Topic: hassConfig.ConfigTopic, Payload: configPayload},
		)
	}
	return messages
}

func publishHass(client mqtt.Client, cfg tomlConfigHass, status *locationStatus, swversion string) error {
	for _, msg := range hassMessages(cfg, status, swversion) {
		token := client.Publish(msg.Topic, 0, false, msg.Payload)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("publishing %s: %w", msg.Topic, token.Error())
		}
	}
	return nil
}
