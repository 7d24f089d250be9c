package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/config"
	"github.com/jmehdipour/payroll-projector/internal/envelope"
	"github.com/jmehdipour/payroll-projector/internal/kafka"
	"github.com/jmehdipour/payroll-projector/internal/logger"
	"github.com/jmehdipour/payroll-projector/internal/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish demo employee events and net-pay snapshots to Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		events := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.EmployeeEvents)
		defer events.Close()
		pay := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.NetPay)
		defer pay.Close()

		codec := envelope.NewCodec()
		n, err := seedEmployees(ctx, codec, events)
		if err != nil {
			return err
		}
		log.Info("employee events published", zap.Int("count", n), zap.String("topic", cfg.Kafka.Topics.EmployeeEvents))

		m, err := seedPay(ctx, codec, pay)
		if err != nil {
			return err
		}
		log.Info("net-pay snapshots published", zap.Int("count", m), zap.String("topic", cfg.Kafka.Topics.NetPay))
		return nil
	},
}

// Deterministic demo employees so repeated seeding exercises deduplication.
var demoEmployees = []struct {
	id      uuid.UUID
	first   string
	last    string
	payType model.PayType
	rate    string
}{
	{uuid.MustParse("6f1a2b3c-0000-4000-8000-000000000001"), "Ada", "Lovelace", model.PayTypeSalary, "125000"},
	{uuid.MustParse("6f1a2b3c-0000-4000-8000-000000000002"), "Alan", "Turing", model.PayTypeHourly, "62.50"},
	{uuid.MustParse("6f1a2b3c-0000-4000-8000-000000000003"), "Grace", "Hopper", model.PayTypeSalary, "140000"},
	{uuid.MustParse("6f1a2b3c-0000-4000-8000-000000000004"), "Edsger", "Dijkstra", model.PayTypeHourly, "58"},
}

func seedEmployees(ctx context.Context, codec *envelope.Codec, p *kafka.Producer) (int, error) {
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	shapes := []model.Shape{model.ShapeDirect, model.ShapeEntityState}
	boxes := []envelope.Boxing{envelope.BoxNone, envelope.BoxObject, envelope.BoxString}

	sent := 0
	send := func(ev model.CanonicalEvent, shape model.Shape, box envelope.Boxing) error {
		raw, err := codec.EncodeEmployeeEvent(ev, shape, box)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ev.EventType, err)
		}
		if err := p.Send(ctx, ev.EntityID.String(), raw); err != nil {
			return fmt.Errorf("send %s: %w", ev.EventType, err)
		}
		sent++
		return nil
	}

	for i, e := range demoEmployees {
		code := e.payType.Code()
		ev := model.CanonicalEvent{
			EntityID:       e.id,
			EventID:        fmt.Sprintf("seed-%d-created", i+1),
			EventType:      model.EventEmployeeCreated,
			OccurredAt:     base.Add(time.Duration(i) * time.Minute),
			FirstName:      e.first,
			LastName:       e.last,
			Email:          fmt.Sprintf("%s.%s@example.com", e.first, e.last),
			PayType:        &code,
			PayRate:        decimal.NewNullDecimal(decimal.RequireFromString(e.rate)),
			PayPeriodHours: decimal.NewNullDecimal(decimal.NewFromInt(40)),
		}
		shape, box := shapes[i%len(shapes)], boxes[i%len(boxes)]
		if err := send(ev, shape, box); err != nil {
			return sent, err
		}
		// redelivery of the same event id
		if i == 0 {
			if err := send(ev, shape, box); err != nil {
				return sent, err
			}
		}
	}

	last := demoEmployees[len(demoEmployees)-1]
	off := false
	deactivate := model.CanonicalEvent{
		EntityID:   last.id,
		EventID:    "seed-deactivate",
		EventType:  model.EventEmployeeDeactivated,
		OccurredAt: base.Add(30 * time.Minute),
		FirstName:  last.first,
		LastName:   last.last,
		IsActive:   &off,
	}
	if err := send(deactivate, model.ShapeEntityState, envelope.BoxString); err != nil {
		return sent, err
	}
	return sent, nil
}

func seedPay(ctx context.Context, codec *envelope.Codec, p *kafka.Producer) (int, error) {
	now := time.Now().UTC()
	period := int64(now.YearDay()/14 + 1)
	start := now.AddDate(0, 0, -13).Format("2006-01-02")
	end := now.Format("2006-01-02")

	sent := 0
	for i, e := range demoEmployees[:len(demoEmployees)-1] {
		gross := decimal.NewFromInt(int64(4000 + 500*i))
		tax := gross.Mul(decimal.RequireFromString("0.22")).Round(2)
		ded := decimal.NewFromInt(150)
		s := model.PaySnapshot{
			EmployeeID:       e.id.String(),
			PayPeriodNumber:  period,
			GrossPay:         gross,
			FederalTax:       tax,
			TotalTax:         tax,
			TotalDeductions:  ded,
			NetPay:           gross.Sub(tax).Sub(ded),
			PayRate:          decimal.RequireFromString(e.rate),
			PayType:          e.payType.String(),
			TotalHoursWorked: decimal.NewFromInt(80),
			PayPeriodStart:   start,
			PayPeriodEnd:     end,
		}
		raw, err := codec.EncodePaySnapshot(s, envelope.Boxing(i%3))
		if err != nil {
			return sent, fmt.Errorf("encode pay snapshot: %w", err)
		}
		if err := p.Send(ctx, s.EmployeeID, raw); err != nil {
			return sent, fmt.Errorf("send pay snapshot: %w", err)
		}
		sent++
	}
	return sent, nil
}
