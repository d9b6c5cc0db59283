// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

// Event types relayed while waiting for a peakplot container.
var containerEventTypes = []string{"stderr", "crunch-run", "crunchstat", "update"}

type eventMessage struct {
	Status     int
	ObjectUUID string `json:"object_uuid"`
	EventType  string `json:"event_type"`
	Properties struct {
		Text string
	}
}

// eventClient delivers Arvados websocket events about subscribed
// object UUIDs to channels. It reconnects, and resubscribes, when the
// connection drops.
type eventClient struct {
	*arvados.Client

	// Returns the websocket URL and origin to dial. If nil, they
	// are taken from the cluster config.
	endpoint func() (wsURL, origin string, err error)

	subscribers map[string]map[chan<- eventMessage]int
	wantClose   chan struct{}
	wsconn      *websocket.Conn
	mtx         sync.Mutex
}

func eventFilter(method, uuid string) map[string]interface{} {
	return map[string]interface{}{
		"method": method,
		"filters": [][]interface{}{
			{"object_uuid", "=", uuid},
			{"event_type", "in", containerEventTypes},
		},
	}
}

// Subscribe starts sending events about uuid to ch. Subscribing the
// same {ch, uuid} pair twice delivers each event once, but needs two
// Unsubscribe calls to stop.
func (client *eventClient) Subscribe(ch chan<- eventMessage, uuid string) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	if client.subscribers == nil {
		client.subscribers = map[string]map[chan<- eventMessage]int{}
		client.wantClose = make(chan struct{})
		go client.run()
	}
	chmap := client.subscribers[uuid]
	if chmap == nil {
		chmap = map[chan<- eventMessage]int{}
		client.subscribers[uuid] = chmap
	}
	chmap[ch]++
	if len(chmap) == 1 && chmap[ch] == 1 && client.wsconn != nil {
		go json.NewEncoder(client.wsconn).Encode(eventFilter("subscribe", uuid))
	}
}

func (client *eventClient) Unsubscribe(ch chan<- eventMessage, uuid string) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	chmap := client.subscribers[uuid]
	n := chmap[ch] - 1
	if n > 0 {
		chmap[ch] = n
		return
	} else if n < 0 {
		return
	}
	delete(chmap, ch)
	if len(chmap) > 0 {
		return
	}
	delete(client.subscribers, uuid)
	if client.wsconn != nil {
		go json.NewEncoder(client.wsconn).Encode(eventFilter("unsubscribe", uuid))
	}
}

// Close stops delivering events and disconnects.
func (client *eventClient) Close() {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	if client.subscribers == nil {
		return
	}
	client.subscribers = nil
	close(client.wantClose)
	if client.wsconn != nil {
		client.wsconn.Close()
		client.wsconn = nil
	}
}

func (client *eventClient) clusterEndpoint() (string, string, error) {
	var cluster arvados.Cluster
	err := client.RequestAndDecode(&cluster, "GET", arvados.EndpointConfigGet.Path, nil, nil)
	if err != nil {
		return "", "", err
	}
	wsURL := cluster.Services.Websocket.ExternalURL
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/websocket"
	wsURL.RawQuery = url.Values{"api_token": []string{client.AuthToken}}.Encode()
	return wsURL.String(), cluster.Services.Controller.ExternalURL.String(), nil
}

func (client *eventClient) closing() bool {
	select {
	case <-client.wantClose:
		return true
	default:
		return false
	}
}

func (client *eventClient) run() {
	endpoint := client.endpoint
	if endpoint == nil {
		endpoint = client.clusterEndpoint
	}
	for !client.closing() {
		wsURL, origin, err := endpoint()
		if err != nil {
			log.Warnf("error getting websocket endpoint: %s", err)
			time.Sleep(pollInterval)
			continue
		}
		conn, err := websocket.Dial(wsURL, "", origin)
		if err != nil {
			log.Warnf("websocket connection error: %s", err)
			time.Sleep(pollInterval)
			continue
		}
		if u, err := url.Parse(wsURL); err == nil {
			u.RawQuery = ""
			log.Infof("connected to websocket at %s", u)
		}

		client.mtx.Lock()
		if client.closing() {
			client.mtx.Unlock()
			conn.Close()
			return
		}
		client.wsconn = conn
		resubscribe := make([]string, 0, len(client.subscribers))
		for uuid := range client.subscribers {
			resubscribe = append(resubscribe, uuid)
		}
		client.mtx.Unlock()

		go func() {
			enc := json.NewEncoder(conn)
			for _, uuid := range resubscribe {
				enc.Encode(eventFilter("subscribe", uuid))
			}
		}()

		dec := json.NewDecoder(conn)
		for {
			var msg eventMessage
			err := dec.Decode(&msg)
			if client.closing() {
				return
			}
			if err != nil {
				log.Infof("error decoding websocket message: %s", err)
				client.mtx.Lock()
				if client.wsconn == conn {
					client.wsconn = nil
				}
				client.mtx.Unlock()
				conn.Close()
				break
			}
			client.mtx.Lock()
			for ch := range client.subscribers[msg.ObjectUUID] {
				ch := ch
				go func() { ch <- msg }()
			}
			client.mtx.Unlock()
		}
	}
}

// relayEvent logs the text of a container log event, one entry per
// line, and reports whether the event is a state update that calls
// for refreshing the container request.
func relayEvent(logger log.FieldLogger, msg eventMessage) bool {
	switch msg.EventType {
	case "update":
		return true
	case "stderr", "crunch-run":
		for _, line := range strings.Split(strings.TrimRight(msg.Properties.Text, "\n"), "\n") {
			if line != "" {
				logger.WithField("source", msg.EventType).Info(line)
			}
		}
	case "crunchstat":
		for _, line := range strings.Split(strings.TrimRight(msg.Properties.Text, "\n"), "\n") {
			if m := reCrunchstatRSS.FindStringSubmatch(line); m != nil {
				logger.WithField("source", msg.EventType).Debugf("rss %s bytes", m[1])
			}
		}
	}
	return false
}
