package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxclient "github.com/influxdata/influxdb1-client/v2"
)

var MQTT_TAG_LABELS = []string{"name"}
var INFLUX_TAG_LABELS = []string{"name"}

func getFieldTags(field reflect.StructField, lookupKey string, defaultLabels []string) map[string]string {
	tags := make(map[string]string)
	labellessTagsValid := true

	if tag, ok := field.Tag.Lookup(lookupKey); ok {
		tagParts := strings.Split(tag, ",")
		for i, tag := range tagParts {
			splitTag := strings.Split(tag, ":")
			if len(splitTag) == 1 {
				if labellessTagsValid {
					if i < len(defaultLabels) {
						tags[defaultLabels[i]] = splitTag[0]
					} else {
						logger.Errorf("Invalid tag - too many labelless tags: %s", tag)
					}
				} else {
					logger.Errorf("Invalid tag - labelless tags not allowed after labeled tag: %s", tag)
				}
			} else if len(splitTag) == 2 {
				labellessTagsValid = false
				tags[splitTag[0]] = splitTag[1]
			} else {
				logger.Errorf("Invalid tag - too many parts: %s", tag)
			}
		}
	}
	return tags
}

// fieldValue dereferences pointer fields; ok is false for nil pointers.
func fieldValue(v reflect.Value) (interface{}, bool) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	return v.Interface(), true
}

type taggedField struct {
	Field string
	Name  string
	Value interface{}
}

// taggedFields walks the fields of the struct status points to, renaming them
// by their lookupKey tag and skipping "-" and nil fields.
func taggedFields(status interface{}, lookupKey string, defaultLabels []string) []taggedField {
	v := reflect.ValueOf(status).Elem()
	typeOfStatus := v.Type()

	fields := make([]taggedField, 0, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		field := typeOfStatus.Field(i)
		name := field.Name

		tags := getFieldTags(field, lookupKey, defaultLabels)
		if tagName, ok := tags["name"]; ok {
			name = tagName
			if name == "-" {
				logger.Debugf("Ignoring field %s for %s", field.Name, lookupKey)
				continue
			}
		}

		value, ok := fieldValue(v.Field(i))
		if !ok {
			continue
		}
		fields = append(fields, taggedField{Field: field.Name, Name: name, Value: value})
	}
	return fields
}

func mqttConnect(cfg tomlConfigMQTT) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.BrokerHost, cfg.BrokerPort))
	if cfg.BrokerPassword != "" && cfg.BrokerUsername != "" {
		opts.SetUsername(cfg.BrokerUsername)
		opts.SetPassword(cfg.BrokerPassword)
	}
	opts.SetClientID(cfg.ClientId)
	opts.SetAutoReconnect(true)
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	r := client.OptionsReader()
	logger.Infof("Connected to MQTT at %s", r.Servers())
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	logger.Errorf("MQTT Connection lost: %v", err)
}

// publishMQTT sends every field of status to topicPrefix/location/field.
func publishMQTT(client mqtt.Client, topicPrefix string, status *locationStatus) error {
	for _, f := range taggedFields(status, "mqtt", MQTT_TAG_LABELS) {
		topic := fmt.Sprintf("%s/%s/%s", topicPrefix, status.Location, f.Name)
		logger.Debugf("field[%s] = [%v]", f.Field, f.Value)
		logger.Debugf("topic = %s", topic)
		token := client.Publish(topic, 0, false, fmt.Sprintf("%v", f.Value))
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("publishing %s: %w", topic, token.Error())
		}
	}
	return nil
}

func newInfluxClient(cfg tomlConfigInflux) (influxclient.Client, error) {
	httpConfig := influxclient.HTTPConfig{
		Addr:    fmt.Sprintf("http://%s:%d", cfg.Hostname, cfg.Port),
		Timeout: 10 * time.Second,
	}
	if cfg.Username != "" && cfg.Password != "" {
		httpConfig.Username = cfg.Username
		httpConfig.Password = cfg.Password
	}
	return influxclient.NewHTTPClient(httpConfig)
}

// publishInflux writes one point for status, its fields named by the influx tags.
func publishInflux(c influxclient.Client, database, measurement string, status *locationStatus, at time.Time) error {
	bp, err := influxclient.NewBatchPoints(influxclient.BatchPointsConfig{
		Database:  database,
		Precision: "s",
	})
	if err != nil {
		return fmt.Errorf("error creating batchpoints: %w", err)
	}

	values := map[string]interface{}{}
	for _, f := range taggedFields(status, "influx", INFLUX_TAG_LABELS) {
		values[f.Name] = f.Value
	}
	if len(values) == 0 {
		return nil
	}

	tags := map[string]string{"location": status.Location}
	if status.City != "" {
		tags["city"] = status.City
	}
	point, err := influxclient.NewPoint(measurement, tags, values, at)
	if err != nil {
		return fmt.Errorf("error creating new point: %w", err)
	}
	bp.AddPoint(point)
	if err := c.Write(bp); err != nil {
		return fmt.Errorf("writing to InfluxDB: %w", err)
	}
	logger.Infof("Record for %s published to InfluxDB", status.Location)
	return nil
}
