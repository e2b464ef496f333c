package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/neurospin/gofreesurfer/pkg/metrics"
	"github.com/neurospin/gofreesurfer/pkg/shutdown"
	"github.com/neurospin/gofreesurfer/pkg/store"
	gstls "github.com/neurospin/gofreesurfer/pkg/tls"
)

var statusOpts struct {
	serveAddr string
	subjectID string
	tlsCert   string
	tlsKey    string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Inspect the recorded pipeline runs",
	Long: `Lists the runs recorded in the run registry. With --serve the registry is
exposed over HTTP together with Prometheus metrics.`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		if registryPath == "" {
			return fmt.Errorf("a run registry is required, set --registry")
		}

		s, err := openStore()
		if err != nil {
			return err
		}

		// The serve path hands the store to the shutdown manager.
		if statusOpts.serveAddr != "" {
			return serveStatus(s)
		}
		defer s.Close()

		runs := s.GetAllRuns()
		if statusOpts.subjectID != "" {
			runs = s.GetSubjectRuns(statusOpts.subjectID)
		}

		if IsJSONOutput() {
			data, err := json.MarshalIndent(runs, "", "    ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Tool", "Subject", "Status", "Started", "Duration", "Error")
		for _, run := range runs {
			duration := ""
			if run.CompletedAt != nil {
				duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
			}
			table.Append(run.ID, run.Tool, run.SubjectID, run.Status,
				run.StartedAt.Format(time.RFC3339), duration, run.Error)
		}
		table.Render()

		return nil
	},
}

// serveStatus exposes the run registry and the Prometheus metrics over HTTP
// until a termination signal arrives.
func serveStatus(s store.Store) error {
	logger := newLogger("status")
	collector := metrics.NewCollector()

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
		runs := s.GetAllRuns()
		if subject := req.URL.Query().Get("subject"); subject != "" {
			runs = s.GetSubjectRuns(subject)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs, "count": len(runs)})
	}).Methods("GET")
	r.HandleFunc("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := s.GetRun(mux.Vars(req)["id"])
		if err == store.ErrRunNotFound {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}).Methods("GET")
	r.Handle("/metrics", collector.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         statusOpts.serveAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	useTLS := statusOpts.tlsCert != "" && statusOpts.tlsKey != ""
	if useTLS {
		tlsConfig, err := gstls.LoadServerConfig(statusOpts.tlsCert, statusOpts.tlsKey)
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
	}

	// LIFO teardown, the server drains before the registry closes.
	manager := shutdown.New(30*time.Second, logger)
	manager.Register(shutdown.CloseResource(s))
	manager.Register(shutdown.StopHTTPServer(server))

	// Background refresh of the registry and host gauges.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			collector.SyncStore(s)
			collector.SampleHost()
			select {
			case <-ticker.C:
			case <-manager.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("status server listening", map[string]interface{}{"addr": statusOpts.serveAddr, "tls": useTLS})
		var err error
		if useTLS {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("status server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	manager.Wait()
	return nil
}

var gencertOpts struct {
	certFile   string
	keyFile    string
	commonName string
	hosts      []string
}

var statusGencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "Generate a self-signed certificate for the status server",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		if err := gstls.GenerateSelfSignedCert(gencertOpts.certFile, gencertOpts.keyFile,
			gencertOpts.commonName, gencertOpts.hosts...); err != nil {
			return err
		}
		fmt.Printf("Wrote %s and %s\n", gencertOpts.certFile, gencertOpts.keyFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.AddCommand(statusGencertCmd)

	statusGencertCmd.Flags().StringVar(&gencertOpts.certFile, "cert", "status.crt", "the certificate output file")
	statusGencertCmd.Flags().StringVar(&gencertOpts.keyFile, "key", "status.key", "the private key output file")
	statusGencertCmd.Flags().StringVar(&gencertOpts.commonName, "cn", "gofreesurfer", "the certificate common name")
	statusGencertCmd.Flags().StringSliceVar(&gencertOpts.hosts, "hosts", nil, "extra IP addresses or DNS names for the SANs")

	statusCmd.Flags().StringVar(&statusOpts.serveAddr, "serve", "", "serve the registry over HTTP on this address")
	statusCmd.Flags().StringVarP(&statusOpts.subjectID, "subjectid", "s", "", "restrict the listing to one subject")
	statusCmd.Flags().StringVar(&statusOpts.tlsCert, "tls-cert", "", "serve over TLS with this certificate")
	statusCmd.Flags().StringVar(&statusOpts.tlsKey, "tls-key", "", "the TLS private key matching --tls-cert")
}
