package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/endpoint-monitor/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create a stdout logger", func() {
			log := logger.New("info", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should respect debug level", func() {
			log := logger.New("debug", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
		})

		It("should respect warn level", func() {
			log := logger.New("warn", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeTrue())
		})
	})

	Describe("NewWithWriter", func() {
		var buf *bytes.Buffer

		BeforeEach(func() {
			buf = &bytes.Buffer{}
		})

		It("should write JSON in prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "prod")
			log.Info("Shipped result", slog.String("client", "web-1"))

			var entry map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
			Expect(entry["msg"]).To(Equal("Shipped result"))
			Expect(entry["client"]).To(Equal("web-1"))
			Expect(entry["environment"]).To(Equal("prod"))
			Expect(entry["service"]).To(Equal("endpoint-monitor"))
		})

		It("should write text outside prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "staging")
			log.Info("Reconcile finished")

			Expect(buf.String()).To(ContainSubstring("msg=\"Reconcile finished\""))
			Expect(buf.String()).To(ContainSubstring("environment=staging"))
		})

		It("should drop records below the level", func() {
			log := logger.NewWithWriter(buf, "error", false, "dev")
			log.Warn("ignored")

			Expect(buf.Len()).To(BeZero())
		})
	})

	Describe("ParseLevel", func() {
		DescribeTable("maps level names",
			func(name string, expected slog.Level) {
				Expect(logger.ParseLevel(name)).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("info", "info", slog.LevelInfo),
			Entry("warn", "WARN", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("unknown falls back to info", "verbose", slog.LevelInfo),
		)
	})
})

var _ = Describe("FormatLogger", func() {
	It("should forward formatted messages at the matching level", func() {
		buf := &bytes.Buffer{}
		f := logger.FormatLogger{Logger: logger.NewWithWriter(buf, "debug", false, "prod")}

		f.Warnf("retry %d of %d", 1, 3)

		var entry map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
		Expect(entry["level"]).To(Equal("WARN"))
		Expect(entry["msg"]).To(Equal("retry 1 of 3"))
	})
})
