/*
Copyright 2017 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	klog "k8s.io/klog/v2"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/config"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgt"
)

var (
	endpoint       = flag.String("endpoint", "unix:///csi/csi.sock", "CSI endpoint")
	nodeID         = flag.String("nodeid", "", "node id")
	configFile     = flag.String("config", "", "path to the YAML configuration file")
	metricsAddress = flag.String("metrics-address", "", "address to serve Prometheus metrics on, empty to disable")
	portal         = flag.String("portal", "", "target portal address handed to initiators, overrides the configuration file")
	tgtadmPath     = flag.String("tgtadm", "", "path to tgtadm, overrides the configuration file")
)

func init() {
	klog.InitFlags(nil)
}

func main() {
	flag.Parse()
	if err := handle(); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func handle() error {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, *configFile)
	if err != nil {
		return err
	}
	if *portal != "" {
		cfg.Portal = *portal
	}
	if *tgtadmPath != "" {
		cfg.Tgtadm.Path = *tgtadmPath
	}

	if err := execlib.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	if *metricsAddress != "" {
		go serveMetrics(*metricsAddress)
	}

	runner := execlib.Instrument(execlib.NewExecRunner(cfg.CommandTimeout.Duration()))
	d := tgt.NewDriver(*nodeID, *endpoint, cfg, runner, fs)
	return d.Run()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	klog.Infof("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		klog.Errorf("Metrics server stopped: %v", err)
	}
}
