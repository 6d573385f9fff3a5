package server

import (
	"github.com/scenewire/scenewire/pkg/codec"
)

// applyImport routes an inbound binary payload by its mesh header.
// Runs on the host loop. Malformed or unexpected payloads are logged
// and dropped; binary frames have no envelope to answer on.
func (s *Server) applyImport(client *Client, payload []byte) {
	magic, ok := codec.PeekMagic(payload)
	if !ok || magic != codec.MagicMesh {
		s.metrics.importsTotal.WithLabelValues("rejected").Inc()
		client.logger.Warn("discarding binary frame", "bytes", len(payload), "magic", magic.String())
		return
	}
	header, err := codec.PeekMeshHeader(payload)
	if err != nil {
		s.metrics.importsTotal.WithLabelValues("rejected").Inc()
		client.logger.Warn("discarding mesh payload", "error", err)
		return
	}

	switch header.Type {
	case codec.MeshData:
		mesh, err := codec.DecodeMesh(payload)
		if err != nil {
			s.metrics.importsTotal.WithLabelValues("rejected").Inc()
			client.logger.Warn("mesh import decode failed", "error", err)
			return
		}
		index, err := s.graph.ImportMesh(mesh)
		if err != nil {
			s.metrics.importsTotal.WithLabelValues("rejected").Inc()
			client.logger.Warn("mesh import failed", "error", err)
			return
		}
		s.metrics.importsTotal.WithLabelValues("mesh").Inc()
		client.logger.Info("mesh imported",
			"index", index,
			"vertices", mesh.VertexCount(),
			"faces", mesh.FaceCount())

	case codec.PositionsOnly:
		mesh, err := codec.DecodeMesh(payload)
		if err != nil {
			s.metrics.importsTotal.WithLabelValues("rejected").Inc()
			client.logger.Warn("positions decode failed", "error", err)
			return
		}
		index, err := s.graph.ApplyPositions(mesh.Positions)
		if err != nil {
			s.metrics.importsTotal.WithLabelValues("rejected").Inc()
			client.logger.Warn("positions update failed", "error", err)
			return
		}
		s.metrics.importsTotal.WithLabelValues("positions").Inc()
		client.logger.Debug("positions updated", "index", index, "vertices", len(mesh.Positions))

	case codec.RawFile:
		name, data, err := codec.DecodeRawFile(payload)
		if err != nil {
			s.metrics.importsTotal.WithLabelValues("rejected").Inc()
			client.logger.Warn("raw file decode failed", "error", err)
			return
		}
		if s.config.RawFileHandler == nil {
			s.metrics.importsTotal.WithLabelValues("rawfile").Inc()
			client.logger.Info("raw file discarded, no handler", "name", name, "bytes", len(data))
			return
		}
		if err := s.config.RawFileHandler(name, data); err != nil {
			s.metrics.importsTotal.WithLabelValues("rejected").Inc()
			client.logger.Warn("raw file handler failed", "name", name, "error", err)
			return
		}
		s.metrics.importsTotal.WithLabelValues("rawfile").Inc()
		client.logger.Info("raw file stored", "name", name, "bytes", len(data))

	default:
		s.metrics.importsTotal.WithLabelValues("rejected").Inc()
		client.logger.Warn("unknown mesh message type", "type", uint8(header.Type))
	}
}
