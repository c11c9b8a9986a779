// FilePath: internal/repository/influx/influx.history.go
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

const measurement = "readings"

// HistoryRepo stores readings as points of the "readings" measurement.
type HistoryRepo struct {
	client influxdb2.Client
	org    string
	bucket string
}

func NewHistoryRepository(client influxdb2.Client, org, bucket string) *HistoryRepo {
	return &HistoryRepo{client: client, org: org, bucket: bucket}
}

func (r *HistoryRepo) Append(ctx context.Context, reading models.Reading) error {
	point := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("id", nuts.NID("rd", 12)).
		AddField("time", reading.Time).
		AddField("temperature", reading.Temperature).
		AddField("humidity", reading.Humidity).
		AddField("pressure", reading.Pressure).
		AddField("gas1", reading.Gas1).
		AddField("gas2", reading.Gas2).
		AddField("gas3", reading.Gas3).
		AddField("gas4", reading.Gas4).
		SetTime(time.Now().UTC())

	writeAPI := r.client.WriteAPIBlocking(r.org, r.bucket)
	if err := writeAPI.WritePoint(ctx, point); err != nil {
		return errors.NewDatabaseError("failed to write reading", err)
	}
	return nil
}

func (r *HistoryRepo) ReadAll(ctx context.Context) ([]models.HistoryRow, error) {
	query := fmt.Sprintf(`from(bucket: %q)
		|> range(start: 0)
		|> filter(fn: (r) => r._measurement == %q)
		|> pivot(rowKey: ["_time", "id"], columnKey: ["_field"], valueColumn: "_value")
		|> group()
		|> sort(columns: ["_time"])`, r.bucket, measurement)

	result, err := r.client.QueryAPI(r.org).Query(ctx, query)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to query readings", err)
	}
	defer result.Close()

	rows := []models.HistoryRow{}
	for result.Next() {
		values := result.Record().Values()
		row := models.HistoryRow{RecordedAt: result.Record().Time()}
		row.ID, _ = values["id"].(string)
		row.Time, _ = values["time"].(string)
		row.Temperature = floatValue(values["temperature"])
		row.Humidity = floatValue(values["humidity"])
		row.Pressure = floatValue(values["pressure"])
		row.Gas1 = floatValue(values["gas1"])
		row.Gas2 = floatValue(values["gas2"])
		row.Gas3 = floatValue(values["gas3"])
		row.Gas4 = floatValue(values["gas4"])
		rows = append(rows, row)
	}
	if result.Err() != nil {
		return nil, errors.NewDatabaseError("failed to parse readings", result.Err())
	}
	return rows, nil
}

// DeleteBefore issues a delete for the range [epoch, before). InfluxDB does
// not report how many points went away, so the count is always 0.
func (r *HistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	err := r.client.DeleteAPI().DeleteWithName(ctx, r.org, r.bucket, time.Unix(0, 0).UTC(), before,
		fmt.Sprintf(`_measurement=%q`, measurement))
	if err != nil {
		return 0, errors.NewDatabaseError("failed to delete readings", err)
	}
	return 0, nil
}

// Ping checks that the server is reachable.
func (r *HistoryRepo) Ping(ctx context.Context) error {
	ok, err := r.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influxdb not ready")
	}
	return nil
}

func floatValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
