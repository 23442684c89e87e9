package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// Vehicle is the body of POST /vehicles.
type Vehicle struct {
	Plate string `json:"plate"`
	Name  string `json:"name"`
}

// Trip is the body of POST /trips.
type Trip struct {
	VehicleID string    `json:"vehicle_id"`
	Title     string    `json:"title"`
	StartDate time.Time `json:"start_date"`
}

// Entry is the body of POST /entries.
type Entry struct {
	VehicleID     string    `json:"vehicle_id"`
	TripID        string    `json:"trip_id,omitempty"`
	CategoryID    string    `json:"category_id"`
	Type          string    `json:"type"`
	Date          time.Time `json:"date"`
	Description   string    `json:"description,omitempty"`
	Amount        float64   `json:"amount"`
	CurrencyCode  string    `json:"currency_code"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method,omitempty"`
}

// Routes between the cities trips are named after.
var cities = []string{
	"Istanbul", "Ankara", "Izmir", "Bursa", "Antalya", "Konya", "Mersin",
	"Kayseri", "Samsun", "Trabzon", "Sofia", "Thessaloniki", "Tbilisi",
}

var plateRegions = []string{"34", "06", "35", "16", "07", "42", "33"}

type category struct {
	ID       string
	Type     string
	Min, Max float64
}

var categories = []category{
	{ID: "freight", Type: "INCOME", Min: 5000, Max: 40000},
	{ID: "fuel", Type: "EXPENSE", Min: 800, Max: 6000},
	{ID: "tolls", Type: "EXPENSE", Min: 50, Max: 900},
	{ID: "maintenance", Type: "EXPENSE", Min: 500, Max: 15000},
	{ID: "meals", Type: "EXPENSE", Min: 100, Max: 1200},
}

// Currencies weighted towards the reporting currency.
var currencies = []string{"TRY", "TRY", "TRY", "USD", "EUR"}

var paymentMethods = []string{"cash", "card", "transfer"}

// Client talks to the ledger API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s failed with status %d: %s", e.Path, e.Code, e.Body)
}

type created struct {
	ID     string `json:"id"`
	Token  string `json:"token"`
	Status string `json:"status"`
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp created
	if err := c.post(ctx, "/auth/login", map[string]string{"username": username, "password": password}, &resp); err != nil {
		return err
	}
	c.Token = resp.Token
	return nil
}

func randomPlate(rng *rand.Rand) string {
	letters := make([]byte, 3)
	for i := range letters {
		letters[i] = byte('A' + rng.Intn(26))
	}
	return fmt.Sprintf("%s %s %03d", plateRegions[rng.Intn(len(plateRegions))], letters, rng.Intn(1000))
}

func (c *Client) CreateVehicle(ctx context.Context, rng *rand.Rand, n int) (string, error) {
	vehicle := Vehicle{Plate: randomPlate(rng), Name: fmt.Sprintf("Truck %d", n)}
	var resp created
	if err := c.post(ctx, "/vehicles", vehicle, &resp); err != nil {
		return "", fmt.Errorf("failed to create vehicle: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("invalid vehicle ID in response")
	}
	log.WithFields(log.Fields{"vehicle_id": resp.ID, "plate": vehicle.Plate}).Info("Created vehicle")
	return resp.ID, nil
}

func (c *Client) OpenTrip(ctx context.Context, rng *rand.Rand, vehicleID string, start time.Time) (string, error) {
	from := cities[rng.Intn(len(cities))]
	to := cities[rng.Intn(len(cities))]
	for to == from {
		to = cities[rng.Intn(len(cities))]
	}
	var resp created
	err := c.post(ctx, "/trips", Trip{VehicleID: vehicleID, Title: from + " - " + to, StartDate: start}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to open trip: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) CloseTrip(ctx context.Context, tripID string) error {
	var resp created
	if err := c.post(ctx, "/trips/"+tripID+"/close", nil, &resp); err != nil {
		return fmt.Errorf("failed to close trip: %w", err)
	}
	return nil
}

func (c *Client) PostEntry(ctx context.Context, entry Entry) (string, error) {
	var resp created
	if err := c.post(ctx, "/entries", entry, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// randomEntry draws an entry for the vehicle's current trip. Amounts are
// drawn in TRY and scaled down for foreign currencies.
func randomEntry(rng *rand.Rand, s *VehicleState, now time.Time) Entry {
	cat := categories[rng.Intn(len(categories))]
	currency := currencies[rng.Intn(len(currencies))]
	amount := cat.Min + rng.Float64()*(cat.Max-cat.Min)
	if currency != "TRY" {
		amount /= 40
	}
	e := Entry{
		VehicleID:    s.VehicleID,
		TripID:       s.TripID,
		CategoryID:   cat.ID,
		Type:         cat.Type,
		Date:         now,
		Amount:       math.Round(amount*100) / 100,
		CurrencyCode: currency,
		Status:       "PENDING",
	}
	if rng.Float64() < 0.7 {
		e.Status = "PAID"
		e.PaymentMethod = paymentMethods[rng.Intn(len(paymentMethods))]
	}
	return e
}

// VehicleState is the simulator's view of one vehicle.
type VehicleState struct {
	VehicleID   string
	TripID      string
	TripEntries int
	TripLength  int
}

// step posts one entry and rotates the trip once it has TripLength entries.
func step(ctx context.Context, c *Client, rng *rand.Rand, s *VehicleState, now time.Time) error {
	if s.TripID == "" {
		tripID, err := c.OpenTrip(ctx, rng, s.VehicleID, now)
		if err != nil {
			return err
		}
		s.TripID, s.TripEntries = tripID, 0
		s.TripLength = 3 + rng.Intn(8)
	}

	entry := randomEntry(rng, s, now)
	id, err := c.PostEntry(ctx, entry)
	if err != nil {
		return err
	}
	s.TripEntries++
	log.WithFields(log.Fields{
		"vehicle_id": s.VehicleID,
		"trip_id":    s.TripID,
		"entry_id":   id,
		"type":       entry.Type,
		"amount":     entry.Amount,
		"currency":   entry.CurrencyCode,
	}).Debug("Posted entry")

	if s.TripEntries >= s.TripLength {
		if err := c.CloseTrip(ctx, s.TripID); err != nil {
			return err
		}
		log.WithFields(log.Fields{"vehicle_id": s.VehicleID, "trip_id": s.TripID, "entries": s.TripEntries}).Info("Closed trip")
		s.TripID = ""
	}
	return nil
}

func simulateVehicle(ctx context.Context, c *Client, s *VehicleState, interval time.Duration, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if err := step(ctx, c, rng, s, now.UTC()); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("vehicle_id", s.VehicleID).Warn("Simulation step failed")
				// The trip was closed elsewhere; open a new one next tick.
				var se *StatusError
				if errors.As(err, &se) && se.Code == http.StatusConflict {
					s.TripID = ""
				}
			}
		}
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return def
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	client := &Client{BaseURL: apiURL, Token: os.Getenv("SIM_AUTH_TOKEN")}
	if client.Token == "" {
		if user := os.Getenv("SIM_USERNAME"); user != "" {
			if err := client.Login(ctx, user, os.Getenv("SIM_PASSWORD")); err != nil {
				log.WithError(err).Fatal("Login failed")
			}
		}
	}

	fleetSize := envInt("FLEET_SIZE", 10)
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"interval":   interval,
	}).Info("Starting ledger simulation")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	states := make([]*VehicleState, 0, fleetSize)
	for i := 0; i < fleetSize; i++ {
		vehicleID, err := client.CreateVehicle(ctx, rng, i+1)
		if err != nil {
			log.WithError(err).Error("Failed to create vehicle")
			continue
		}
		states = append(states, &VehicleState{VehicleID: vehicleID})
	}

	log.WithField("created_vehicles", len(states)).Info("Vehicle creation completed")
	if len(states) == 0 {
		log.Error("No vehicles created. Ensure SIM_AUTH_TOKEN is valid and API is reachable. Exiting.")
		return
	}

	for _, s := range states {
		go simulateVehicle(ctx, client, s, interval, rng.Int63())
	}

	log.Info("Ledger simulation started")
	<-ctx.Done()
	log.Info("Simulation stopped")
}
