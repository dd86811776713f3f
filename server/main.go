package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/user0608/facedetect"
)

func newServer(d *facedetect.Detector) *echo.Echo {
	e := echo.New()
	e.Logger.SetLevel(log.INFO)
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))

	e.GET("/", func(c echo.Context) error { return c.JSON(http.StatusOK, "OK") })
	e.POST("/faces", NewFacesHandle(d))
	e.POST("/faces/best", NewBestFaceHandle(d))
	e.POST("/facecrop", NewFaceCropHandle(d, facedetect.DefaultCropOptions()))
	e.POST("/similarity", NewSimilarityHandle(d))
	return e
}

func main() {
	opts, err := facedetect.OptionsFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	d, err := facedetect.New(&opts)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	e := newServer(d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		addr := os.Getenv("LISTEN_ADDR")
		if addr == "" {
			addr = ":1323"
		}
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
