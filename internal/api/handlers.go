package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	apperrors "github.com/gmsas95/takeoff/internal/errors"
	"github.com/gmsas95/takeoff/internal/lineitems"
	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"
)

type regionRequest struct {
	X      any `json:"x"`
	Y      any `json:"y"`
	Width  any `json:"width"`
	Height any `json:"height"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   version,
		"timestamp": time.Now().Unix(),
		"stats":     s.metrics.Snapshot(),
	})
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("pdf_file")
	if err != nil {
		return apperrors.Invalid("No file part: expected multipart field pdf_file")
	}
	if file.Filename == "" {
		return apperrors.Invalid("No selected file")
	}

	f, err := file.Open()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to read upload")
	}
	defer f.Close()

	doc, err := s.service.Upload(file.Filename, f)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	doc, err := s.service.Document(c.Params("doc"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) handlePagePreview(c *fiber.Ctx) error {
	page, err := intParam(c, "page")
	if err != nil {
		return err
	}
	svg, err := s.service.PagePreview(c.UserContext(), c.Params("doc"), page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"svg_data": string(svg)})
}

func (s *Server) handleExtract(c *fiber.Ctx) error {
	page, err := intParam(c, "page")
	if err != nil {
		return err
	}
	var req regionRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	rect, err := lineitems.RectFromValues(req.X, req.Y, req.Width, req.Height)
	if err != nil {
		return err
	}

	res, err := s.service.Extract(c.UserContext(), c.Params("doc"), page, rect)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleGetItem(c *fiber.Ctx) error {
	page, item, err := itemParams(c)
	if err != nil {
		return err
	}
	view, err := s.service.GetItem(c.Params("doc"), page, item)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"line_item_data": view.Item,
		"pdf_name":       view.Document.Name,
	})
}

func (s *Server) handleOCR(c *fiber.Ctx) error {
	page, item, err := itemParams(c)
	if err != nil {
		return err
	}
	var req regionRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	crop, err := lineitems.CropFromValues(req.X, req.Y, req.Width, req.Height)
	if err != nil {
		return err
	}

	lines, err := s.service.RefineOCR(c.UserContext(), c.Params("doc"), page, item, crop)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "ocr_text": lines})
}

func (s *Server) handleUpdateMetadata(c *fiber.Ctx) error {
	page, item, err := itemParams(c)
	if err != nil {
		return err
	}
	var req map[string]any
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	md, err := lineitems.MetadataFromValues(req)
	if err != nil {
		return err
	}

	if err := s.service.UpdateMetadata(c.Params("doc"), page, item, md); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Metadata saved successfully"})
}

func (s *Server) handleDeleteItem(c *fiber.Ctx) error {
	page, item, err := itemParams(c)
	if err != nil {
		return err
	}
	if err := s.service.DeleteItem(c.Params("doc"), page, item); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleListItems(c *fiber.Ctx) error {
	table, err := s.service.ListItems(c.Params("doc"))
	if err != nil {
		return err
	}

	if c.Query("format") == "yaml" {
		out, err := yaml.Marshal(table)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode items")
		}
		c.Set(fiber.HeaderContentType, "application/yaml; charset=utf-8")
		return c.Send(out)
	}

	out, err := json.Marshal(table)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode items")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(out)
}

func (s *Server) handleGetImage(c *fiber.Ctx) error {
	file := c.Params("file")
	path, err := s.service.ImagePath(c.Params("doc"), file)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return apperrors.ImageNotFound(file, err)
	} else if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to read image")
	}
	return c.SendFile(path)
}

func intParam(c *fiber.Ctx, name string) (int, error) {
	n, err := strconv.Atoi(c.Params(name))
	if err != nil {
		return 0, apperrors.Invalid("Invalid %s: %q", name, c.Params(name))
	}
	return n, nil
}

func itemParams(c *fiber.Ctx) (int, int, error) {
	page, err := intParam(c, "page")
	if err != nil {
		return 0, 0, err
	}
	item, err := intParam(c, "item")
	if err != nil {
		return 0, 0, err
	}
	return page, item, nil
}

// decodeBody reads a JSON body regardless of the declared content type.
func decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return apperrors.Invalid("Invalid input parameters: empty body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.Invalid("Invalid input parameters: %v", err)
	}
	return nil
}
